package jobs

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Record is a raw posting or resume as delivered by a collaborator.
type Record = map[string]any

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

type rawPosting struct {
	Title          string    `json:"title"`
	Company        string    `json:"company"`
	Location       string    `json:"location"`
	Description    string    `json:"description"`
	Skills         []string  `json:"skills"`
	SkillsRequired []string  `json:"skills_required"`
	URL            string    `json:"url"`
	Source         string    `json:"source"`
	Sources        []string  `json:"sources"`
	ScrapedAt      time.Time `json:"scraped_at"`
	Date           string    `json:"date"`
	MinExperience  *float64  `json:"min_experience"`
	MaxExperience  *float64  `json:"max_experience"`
}

type rawResume struct {
	Name               string       `json:"name"`
	Email              string       `json:"email"`
	Skills             []string     `json:"skills"`
	ExperienceYears    float64      `json:"experience_years"`
	CurrentLocation    string       `json:"current_location"`
	PreferredLocations []string     `json:"preferred_locations"`
	About              string       `json:"about"`
	Projects           []rawProject `json:"projects"`
}

type rawProject struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Rejected is a record that could not be decoded.
type Rejected struct {
	Index int
	Err   error
}

// DecodePosting turns a raw record into a posting with its id computed.
// Field presence is not checked here, see Posting.Validate.
func DecodePosting(record Record) (*Posting, error) {
	var raw rawPosting
	if err := decode(record, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPosting, err)
	}

	p := &Posting{
		Title:         strings.TrimSpace(raw.Title),
		Company:       strings.TrimSpace(raw.Company),
		Location:      strings.TrimSpace(raw.Location),
		Description:   strings.TrimSpace(raw.Description),
		Skills:        UnionFold(raw.Skills, raw.SkillsRequired),
		URL:           strings.TrimSpace(raw.URL),
		Source:        strings.TrimSpace(raw.Source),
		ScrapedAt:     raw.ScrapedAt.UTC(),
		MinExperience: raw.MinExperience,
		MaxExperience: raw.MaxExperience,
	}

	if p.ScrapedAt.IsZero() && raw.Date != "" {
		p.ScrapedAt = parseDate(raw.Date)
	}

	if p.Source != "" {
		p.Sources = UnionFold(raw.Sources, []string{p.Source})
	} else {
		p.Sources = UnionFold(raw.Sources)
	}

	p.ID = NewID(p.Title, p.Company, p.Location, p.Source)

	return p, nil
}

// DecodePostings decodes every record, collecting the ones that fail.
func DecodePostings(records []Record) ([]*Posting, []Rejected) {
	postings := make([]*Posting, 0, len(records))
	var rejected []Rejected
	for i, record := range records {
		p, err := DecodePosting(record)
		if err != nil {
			rejected = append(rejected, Rejected{Index: i, Err: err})
			continue
		}
		postings = append(postings, p)
	}
	return postings, rejected
}

// DecodeResume accepts skills as plain strings or {name, level} objects and
// projects named either by name or title.
func DecodeResume(record Record) (*Resume, error) {
	var raw rawResume
	if err := decode(record, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResume, err)
	}

	r := &Resume{
		Name:               strings.TrimSpace(raw.Name),
		Email:              strings.TrimSpace(raw.Email),
		Skills:             UnionFold(raw.Skills),
		ExperienceYears:    raw.ExperienceYears,
		CurrentLocation:    strings.TrimSpace(raw.CurrentLocation),
		PreferredLocations: trimAll(raw.PreferredLocations),
		About:              strings.TrimSpace(raw.About),
	}

	for _, project := range raw.Projects {
		name := strings.TrimSpace(project.Name)
		if name == "" {
			name = strings.TrimSpace(project.Title)
		}
		r.Projects = append(r.Projects, Project{
			Name:        name,
			Description: strings.TrimSpace(project.Description),
		})
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}

	return r, nil
}

// UnionFold merges string sets case-insensitively, keeping the first spelling
// seen for every value. The result is sorted by the folded value.
func UnionFold(sets ...[]string) []string {
	seen := make(map[string]string)
	for _, set := range sets {
		for _, value := range set {
			value = strings.TrimSpace(value)
			key := NormalizeText(value)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; !ok {
				seen[key] = value
			}
		}
	}

	if len(seen) == 0 {
		return nil
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, seen[key])
	}
	return out
}

func decode(input any, output any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           output,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			flattenNamedHook,
			stringToTimeHook,
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}

	return decoder.Decode(input)
}

// flattenNamedHook converts lists like [{name: Go, level: expert}] into ["Go"].
func flattenNamedHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf([]string{}) || from.Kind() != reflect.Slice {
		return data, nil
	}

	value := reflect.ValueOf(data)
	out := make([]string, 0, value.Len())
	for i := 0; i < value.Len(); i++ {
		switch item := value.Index(i).Interface().(type) {
		case nil:
		case string:
			out = append(out, item)
		case map[string]any:
			if name, ok := item["name"]; ok && name != nil {
				out = append(out, fmt.Sprint(name))
			}
		case map[any]any:
			if name, ok := item["name"]; ok && name != nil {
				out = append(out, fmt.Sprint(name))
			}
		default:
			out = append(out, fmt.Sprint(item))
		}
	}

	return out, nil
}

func stringToTimeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}

	value := strings.TrimSpace(reflect.ValueOf(data).String())
	if value == "" {
		return time.Time{}, nil
	}

	t := parseDate(value)
	if t.IsZero() {
		return nil, fmt.Errorf("unsupported time format %q", value)
	}
	return t, nil
}

func parseDate(value string) time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func trimAll(values []string) []string {
	var out []string
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}

package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"cian_scrooper/identity"
	"cian_scrooper/models"
)

const (
	RegionsFile = "regions.json"
	PhonesFile  = "data.json"
	CodesFile   = "codes.txt"
	ReportFile  = "phones.txt"
	LockFile    = "parsing.lock"
)

// Artifacts reads and writes the JSON and text files under the output dir.
type Artifacts struct {
	dir string
}

func NewArtifacts(dir string) (*Artifacts, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, eris.Wrapf(err, "create output dir %s", dir)
	}
	return &Artifacts{dir: dir}, nil
}

func (a *Artifacts) Dir() string {
	return a.dir
}

func (a *Artifacts) Path(name string) string {
	return filepath.Join(a.dir, name)
}

// =============================================================================
// regions.json
// =============================================================================

type listingsFile struct {
	Data []models.Listing `json:"data"`
}

// looseListing accepts ids written as numbers or strings.
type looseListing struct {
	models.Listing
	RawID json.RawMessage `json:"id"`
}

// hintsOnly is the fallback for records whose descriptive fields do not
// decode; the phone step only needs these.
type hintsOnly struct {
	RawID       json.RawMessage `json:"id"`
	URL         string          `json:"url"`
	AuthorType  string          `json:"author_type"`
	BlockID     *int64          `json:"blockId"`
	DirectPhone string          `json:"directPhone"`
}

// LoadListings reads regions.json. A missing file yields no listings. Both
// {"data": [...]} and a bare array are accepted.
func (a *Artifacts) LoadListings() ([]models.Listing, error) {
	data, err := os.ReadFile(a.Path(RegionsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "read regions file")
	}

	var items []json.RawMessage
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &items)
	} else {
		var wrapped struct {
			Data []json.RawMessage `json:"data"`
		}
		err = json.Unmarshal(trimmed, &wrapped)
		items = wrapped.Data
	}
	if err != nil {
		return nil, eris.Wrap(err, "parse regions file")
	}

	listings := make([]models.Listing, 0, len(items))
	for _, raw := range items {
		var l looseListing
		if err := json.Unmarshal(raw, &l); err != nil {
			var h hintsOnly
			if err := json.Unmarshal(raw, &h); err != nil {
				zap.L().Debug("skipping unreadable listing", zap.Error(err))
				continue
			}
			l = looseListing{
				Listing: models.Listing{URL: h.URL, AuthorType: h.AuthorType, BlockID: h.BlockID, DirectPhone: h.DirectPhone},
				RawID:   h.RawID,
			}
		}
		l.Listing.ID = strings.Trim(string(l.RawID), `"`)
		if l.Listing.ID == "" || l.Listing.ID == "null" {
			l.Listing.ID, _ = identity.ListingID(l.URL)
		}
		listings = append(listings, l.Listing)
	}
	return listings, nil
}

func (a *Artifacts) SaveListings(listings []models.Listing) error {
	if listings == nil {
		listings = []models.Listing{}
	}
	return a.writeJSON(RegionsFile, listingsFile{Data: listings})
}

// =============================================================================
// data.json
// =============================================================================

// PhoneBook maps listing id to its phone record.
type PhoneBook map[string]models.PhoneRecord

type phonesFile struct {
	Data PhoneBook `json:"data"`
}

// LoadPhoneBook reads data.json. A missing or corrupt file yields an empty book.
func (a *Artifacts) LoadPhoneBook() (PhoneBook, error) {
	data, err := os.ReadFile(a.Path(PhonesFile))
	if errors.Is(err, os.ErrNotExist) {
		return PhoneBook{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "read phones file")
	}

	var f phonesFile
	if err := json.Unmarshal(data, &f); err != nil {
		zap.L().Warn("phones file is corrupt, starting fresh", zap.Error(err))
		return PhoneBook{}, nil
	}
	if f.Data == nil {
		f.Data = PhoneBook{}
	}
	return f.Data, nil
}

func (a *Artifacts) SavePhoneBook(book PhoneBook) error {
	if book == nil {
		book = PhoneBook{}
	}
	return a.writeJSON(PhonesFile, phonesFile{Data: book})
}

// ClearPhoneData removes data.json and phones.txt.
func (a *Artifacts) ClearPhoneData() error {
	for _, name := range []string{PhonesFile, ReportFile} {
		if err := os.Remove(a.Path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return eris.Wrapf(err, "remove %s", name)
		}
	}
	return nil
}

// =============================================================================
// codes.txt
// =============================================================================

func (a *Artifacts) SaveCodes(urls []string) error {
	return a.writeFile(CodesFile, []byte(strings.Join(urls, "\n")))
}

// =============================================================================
// phones.txt
// =============================================================================

type Report struct {
	StartedAt time.Time
	Duration  time.Duration
	Limit     int
	Mode      string
	Book      PhoneBook
}

// Counts returns per-source and per-method tallies of resolved records.
func (r Report) Counts() (success int, sources, methods map[string]int) {
	sources = make(map[string]int)
	methods = make(map[string]int)
	for _, rec := range r.Book {
		if !rec.Succeeded() {
			continue
		}
		success++
		sources[string(rec.Source)]++
		methods[rec.Method]++
	}
	return success, sources, methods
}

func (a *Artifacts) WriteReport(r Report) error {
	success, sources, methods := r.Counts()

	var b strings.Builder
	fmt.Fprintf(&b, "Дата парсинга: %s\n", r.StartedAt.Format("2006-01-02 15:04:05"))
	if r.Mode != "" {
		fmt.Fprintf(&b, "Режим парсинга: %s\n", r.Mode)
	}
	fmt.Fprintf(&b, "Обработано объявлений: %d\n", len(r.Book))
	fmt.Fprintf(&b, "Успешно полученных номеров: %d\n", success)
	fmt.Fprintf(&b, "Время выполнения: %s\n", r.Duration.Round(time.Second))
	fmt.Fprintf(&b, "Ограничение на количество: %d\n", r.Limit)

	b.WriteString("\nСтатистика по источникам:\n")
	for _, k := range sortedKeys(sources) {
		fmt.Fprintf(&b, "  %s: %d номеров\n", k, sources[k])
	}
	b.WriteString("\nСтатистика по методам извлечения:\n")
	for _, k := range sortedKeys(methods) {
		fmt.Fprintf(&b, "  %s: %d номеров\n", k, methods[k])
	}

	b.WriteString("\nСпарсенные номера:\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")
	for _, id := range sortedKeys(r.Book) {
		rec := r.Book[id]
		fmt.Fprintf(&b, "ID: %s\nТелефон: %s\nИсточник: %s\nМетод: %s\n", id, rec.Phone, rec.Source, rec.Method)
		b.WriteString(strings.Repeat("-", 50) + "\n")
	}

	return a.writeFile(ReportFile, []byte(b.String()))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (a *Artifacts) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "marshal %s", name)
	}
	return a.writeFile(name, data)
}

// writeFile replaces name atomically so readers never see a partial file.
func (a *Artifacts) writeFile(name string, data []byte) error {
	path := a.Path(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return eris.Wrapf(err, "write %s", name)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "rename %s", name)
	}
	return nil
}

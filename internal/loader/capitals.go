package loader

import (
	"os"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Capitals designates capital municipalities by name. Region maps a
// municipality name to the region it is the capital of; Province does the
// same for provinces whose capital is not named after the province.
type Capitals struct {
	Region   map[string]string `yaml:"region"`
	Province map[string]string `yaml:"province"`
}

// LoadCapitals merges the capitals file at path (if any) over base.
func LoadCapitals(path string, base map[string]string) (Capitals, error) {
	c := Capitals{Region: make(map[string]string, len(base)), Province: map[string]string{}}
	for k, v := range base {
		c.Region[k] = v
	}
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, eris.Wrapf(err, "loader: read capitals file %s", path)
	}
	var file Capitals
	if err := yaml.Unmarshal(data, &file); err != nil {
		return c, eris.Wrapf(err, "loader: parse capitals file %s", path)
	}
	for k, v := range file.Region {
		c.Region[k] = v
	}
	for k, v := range file.Province {
		c.Province[k] = v
	}
	return c, nil
}

// regionFor returns the region whose capital is the named municipality.
func (c Capitals) regionFor(name string) (string, bool) {
	return lookupFolded(c.Region, name)
}

// provinceFor returns the province whose capital is the named municipality.
func (c Capitals) provinceFor(name string) (string, bool) {
	return lookupFolded(c.Province, name)
}

func lookupFolded(m map[string]string, name string) (string, bool) {
	key := FoldName(name)
	for k, v := range m {
		if FoldName(k) == key {
			return v, true
		}
	}
	return "", false
}

var foldApostrophes = strings.NewReplacer("’", "'", "`", "'", "‘", "'")

// FoldName normalizes a place name for matching: diacritics removed,
// lower-cased, apostrophes unified and whitespace collapsed.
func FoldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = foldApostrophes.Replace(strings.ToLower(out))
	return strings.Join(strings.Fields(out), " ")
}

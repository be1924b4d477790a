package services

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/SAP-F-2025/content-import-service/internal/utils"
	"gopkg.in/yaml.v3"
)

//go:embed data/medical_domains.yaml
var defaultMedicalDomains []byte

type medicalDomain struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// MedicalDictionary resolves normalized category names to a canonical
// medical domain by keyword containment
type MedicalDictionary struct {
	domains []medicalDomain
}

// LoadMedicalDictionary reads the dictionary at path, or the embedded one
// when path is empty
func LoadMedicalDictionary(path string) (*MedicalDictionary, error) {
	data := defaultMedicalDomains
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read medical dictionary %s: %w", path, err)
		}
		data = raw
	}
	return ParseMedicalDictionary(data)
}

func ParseMedicalDictionary(data []byte) (*MedicalDictionary, error) {
	var doc struct {
		Domains []medicalDomain `yaml:"domains"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse medical dictionary: %w", err)
	}
	if len(doc.Domains) == 0 {
		return nil, fmt.Errorf("medical dictionary has no domains")
	}

	dict := &MedicalDictionary{}
	for _, d := range doc.Domains {
		domain := medicalDomain{Name: utils.NormalizeName(d.Name)}
		// The domain name itself always resolves to the domain
		keywords := append([]string{domain.Name}, d.Keywords...)
		for _, k := range keywords {
			if k = utils.NormalizeName(k); k != "" {
				domain.Keywords = append(domain.Keywords, k)
			}
		}
		// Longer keywords first so the most specific match is reported
		sort.SliceStable(domain.Keywords, func(i, j int) bool {
			return len(domain.Keywords[i]) > len(domain.Keywords[j])
		})
		dict.domains = append(dict.domains, domain)
	}
	return dict, nil
}

// MustDefaultMedicalDictionary returns the embedded dictionary
func MustDefaultMedicalDictionary() *MedicalDictionary {
	dict, err := ParseMedicalDictionary(defaultMedicalDomains)
	if err != nil {
		panic(err)
	}
	return dict
}

// Resolve returns the domain of an already normalized name, or "" if none
// of the keywords is contained in it. The first domain listed wins.
func (d *MedicalDictionary) Resolve(normalized string) string {
	if normalized == "" {
		return ""
	}
	for _, domain := range d.domains {
		for _, k := range domain.Keywords {
			if strings.Contains(normalized, k) {
				return domain.Name
			}
		}
	}
	return ""
}

// Domains returns the canonical domain names in dictionary order
func (d *MedicalDictionary) Domains() []string {
	names := make([]string, len(d.domains))
	for i, domain := range d.domains {
		names[i] = domain.Name
	}
	return names
}

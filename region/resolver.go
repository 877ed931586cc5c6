package region

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/warp/settlement-engine/generic"
)

// =============================================================================
// RESOLVER - Free-text name → Code
// =============================================================================

// Resolver maps free-text region names onto canonical codes.
//
// Matching runs in passes and stops at the first pass that yields a single
// code:
//
//  1. exact canonical name ("수원시")
//  2. exact name ignoring the 시/군 suffix ("수원")
//  3. prefix of a canonical name ("남양" → 남양주시)
//  4. canonical name contained in the input ("경기도 남양주시 화도읍")
//  5. suffix-less name contained in the input ("경기 수원 팔달구")
//
// In passes 4 and 5 a candidate whose name is contained in another
// candidate's name is dropped, so 남양주시 wins over 양주시. More than one
// surviving candidate is ambiguous and resolves to nothing.
type Resolver struct {
	entries []CityCounty
	aliases map[string]Code
}

// NewResolver builds a resolver over the canonical city/county list.
func NewResolver() *Resolver {
	return NewResolverWith(All())
}

// NewResolverWith builds a resolver over a custom entry list.
func NewResolverWith(entries []CityCounty) *Resolver {
	return &Resolver{entries: entries, aliases: make(map[string]Code)}
}

// AddAlias registers an administrative alias (e.g. a former county name).
// Aliases are checked before any other pass.
func (r *Resolver) AddAlias(alias string, code Code) {
	r.aliases[strings.TrimSpace(alias)] = code
}

// Resolve returns the code for name, or false when nothing or more than one
// code matches.
func (r *Resolver) Resolve(name string) (Code, bool) {
	code, candidates := r.resolve(name)
	if len(candidates) > 0 || code == "" {
		return "", false
	}
	return code, true
}

// ResolveRegion is Resolve with a *generic.RegionError describing the failure.
func (r *Resolver) ResolveRegion(name string) (Code, error) {
	code, candidates := r.resolve(name)
	if code != "" && len(candidates) == 0 {
		return code, nil
	}
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.Name)
	}
	return "", &generic.RegionError{Name: name, Candidates: names}
}

// Apply fills region.Code from region.CityCounty when missing. A region
// that cannot be resolved is returned unchanged.
func (r *Resolver) Apply(region Region) Region {
	if region.Resolved() {
		return region
	}
	name := region.CityCounty
	if name == "" {
		name = region.Address
	}
	if code, ok := r.Resolve(name); ok {
		region.Code = &code
	}
	return region
}

func (r *Resolver) resolve(raw string) (Code, []CityCounty) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", nil
	}
	if code, ok := r.aliases[name]; ok {
		return code, nil
	}

	for _, e := range r.entries {
		if e.Name == name {
			return e.Code, nil
		}
	}

	stemmed := stem(name)
	for _, e := range r.entries {
		if stem(e.Name) == stemmed {
			return e.Code, nil
		}
	}

	if utf8.RuneCountInString(name) >= 2 {
		var prefixed []CityCounty
		for _, e := range r.entries {
			if strings.HasPrefix(e.Name, name) {
				prefixed = append(prefixed, e)
			}
		}
		if code, ambiguous := pick(prefixed); code != "" || len(ambiguous) > 0 {
			return code, ambiguous
		}
	}

	var contained []CityCounty
	for _, e := range r.entries {
		if strings.Contains(name, e.Name) {
			contained = append(contained, e)
		}
	}
	if code, ambiguous := pickLongest(contained, func(e CityCounty) string { return e.Name }); code != "" || len(ambiguous) > 0 {
		return code, ambiguous
	}

	contained = contained[:0]
	for _, e := range r.entries {
		if containsWord(name, stem(e.Name)) {
			contained = append(contained, e)
		}
	}
	return pickLongest(contained, func(e CityCounty) string { return stem(e.Name) })
}

// stem drops a trailing 시 or 군 when something remains.
func stem(name string) string {
	for _, suffix := range []string{"시", "군"} {
		if strings.HasSuffix(name, suffix) && utf8.RuneCountInString(name) > 2 {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}

// containsWord reports whether word occurs in s without another Hangul
// syllable right after it, so "광주" matches "광주 오포읍" but not "광주광역시".
func containsWord(s, word string) bool {
	for from := 0; ; {
		i := strings.Index(s[from:], word)
		if i < 0 {
			return false
		}
		end := from + i + len(word)
		next, _ := utf8.DecodeRuneInString(s[end:])
		if end == len(s) || !unicode.Is(unicode.Hangul, next) {
			return true
		}
		from = end
	}
}

func pick(candidates []CityCounty) (Code, []CityCounty) {
	switch len(candidates) {
	case 0:
		return "", nil
	case 1:
		return candidates[0].Code, nil
	default:
		return "", candidates
	}
}

// pickLongest drops candidates whose key is contained in another
// candidate's key, then picks the single survivor.
func pickLongest(candidates []CityCounty, key func(CityCounty) string) (Code, []CityCounty) {
	var survivors []CityCounty
	for i, c := range candidates {
		shadowed := false
		for j, other := range candidates {
			if i != j && key(other) != key(c) && strings.Contains(key(other), key(c)) {
				shadowed = true
				break
			}
		}
		if !shadowed {
			survivors = append(survivors, c)
		}
	}
	return pick(survivors)
}

// Package vehiclenlp recovers make, model and year from free-text listing
// titles such as "Onix LT 1.0 2020" or "VW Polo Highline 200 TSI 21/22".
// Matching is dictionary driven over the makes sold in the Brazilian market.
package vehiclenlp

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Match is a vehicle mention found in a title.
type Match struct {
	Make       string  // e.g. "Chevrolet"
	Model      string  // e.g. "Onix"
	Year       int     // 0 if not found
	Confidence float64 // 0.0-1.0
	Span       string  // the matched text fragment
}

// makeAliases maps abbreviations and nicknames to canonical make names.
var makeAliases = map[string]string{
	"chevrolet":     "Chevrolet",
	"chevy":         "Chevrolet",
	"gm":            "Chevrolet",
	"vw":            "Volkswagen",
	"volks":         "Volkswagen",
	"volkswagen":    "Volkswagen",
	"fiat":          "Fiat",
	"ford":          "Ford",
	"toyota":        "Toyota",
	"honda":         "Honda",
	"hyundai":       "Hyundai",
	"renault":       "Renault",
	"nissan":        "Nissan",
	"jeep":          "Jeep",
	"peugeot":       "Peugeot",
	"citroen":       "Citroën",
	"citroën":       "Citroën",
	"mitsubishi":    "Mitsubishi",
	"kia":           "Kia",
	"caoa chery":    "Chery",
	"chery":         "Chery",
	"byd":           "BYD",
	"gwm":           "GWM",
	"ram":           "Ram",
	"bmw":           "BMW",
	"audi":          "Audi",
	"mercedes":      "Mercedes-Benz",
	"mercedes-benz": "Mercedes-Benz",
	"volvo":         "Volvo",
	"land rover":    "Land Rover",
	"porsche":       "Porsche",
}

// makeModels maps a canonical make to its models.
var makeModels = map[string][]string{
	"Chevrolet":     {"Onix", "Onix Plus", "Prisma", "Tracker", "S10", "Spin", "Cruze", "Montana", "Equinox", "Celta", "Corsa", "Cobalt", "Trailblazer"},
	"Volkswagen":    {"Gol", "Polo", "Virtus", "T-Cross", "Nivus", "Saveiro", "Amarok", "Jetta", "Taos", "Fox", "Up", "Voyage", "Golf", "Tiguan"},
	"Fiat":          {"Argo", "Mobi", "Strada", "Toro", "Pulse", "Fastback", "Cronos", "Uno", "Palio", "Siena", "Doblo", "Fiorino", "Palio Weekend"},
	"Ford":          {"Ka", "Ka Sedan", "Ranger", "EcoSport", "Territory", "Fiesta", "Focus", "Fusion", "Maverick", "Bronco Sport", "Mustang"},
	"Toyota":        {"Corolla", "Corolla Cross", "Hilux", "SW4", "Yaris", "Etios", "RAV4", "Camry", "Prius"},
	"Honda":         {"Civic", "City", "HR-V", "WR-V", "Fit", "CR-V", "Accord", "ZR-V"},
	"Hyundai":       {"HB20", "HB20S", "Creta", "Tucson", "Santa Fe", "ix35", "Azera"},
	"Renault":       {"Kwid", "Sandero", "Logan", "Duster", "Oroch", "Captur", "Stepway", "Kardian"},
	"Nissan":        {"Kicks", "Versa", "Frontier", "March", "Sentra", "Leaf"},
	"Jeep":          {"Renegade", "Compass", "Commander", "Wrangler", "Grand Cherokee"},
	"Peugeot":       {"208", "2008", "3008", "Partner", "Expert"},
	"Citroën":       {"C3", "C3 Aircross", "C4 Cactus", "Aircross", "Jumpy"},
	"Mitsubishi":    {"L200", "L200 Triton", "Outlander", "Pajero", "Pajero Sport", "ASX", "Eclipse Cross"},
	"Kia":           {"Sportage", "Cerato", "Picanto", "Sorento", "Stonic", "Niro"},
	"Chery":         {"Tiggo 5x", "Tiggo 7", "Tiggo 8", "Arrizo 6"},
	"BYD":           {"Dolphin", "Dolphin Mini", "Seal", "Song Plus", "Yuan Plus", "King"},
	"GWM":           {"Haval H6", "Ora 03"},
	"Ram":           {"Rampage", "1500", "2500", "Classic"},
	"BMW":           {"320i", "330e", "X1", "X3", "X5", "X6", "M3", "118i"},
	"Audi":          {"A3", "A4", "A5", "Q3", "Q5", "Q7", "e-tron"},
	"Mercedes-Benz": {"C 180", "C 200", "C 300", "GLA 200", "GLC", "A 200", "CLA"},
	"Volvo":         {"XC40", "XC60", "XC90", "EX30"},
	"Land Rover":    {"Evoque", "Discovery", "Discovery Sport", "Defender", "Range Rover", "Velar"},
	"Porsche":       {"911", "Cayenne", "Macan", "Taycan", "Panamera"},
}

type modelEntry struct {
	lower, canonical string
}

var (
	// uniqueModels maps models that identify a make on their own.
	uniqueModels map[string]string
	// standalone lists the keys of uniqueModels, longest first.
	standalone []string
	// modelsByMake holds each make's models, longest first.
	modelsByMake map[string][]modelEntry
	makeRe       *regexp.Regexp

	yearFullRe = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
	// 21/22 and 2021/2022 style fabrication/model pairs; the model year wins.
	yearPairRe = regexp.MustCompile(`\b(?:\d{2}|\d{4})/(\d{2}|\d{4})\b`)
)

func init() {
	uniqueModels = make(map[string]string)
	modelsByMake = make(map[string][]modelEntry)

	modelCount := make(map[string]int)
	for mk, models := range makeModels {
		entries := make([]modelEntry, 0, len(models))
		for _, m := range models {
			ml := strings.ToLower(m)
			entries = append(entries, modelEntry{ml, m})
			modelCount[ml]++
		}
		sort.Slice(entries, func(i, j int) bool { return len(entries[i].lower) > len(entries[j].lower) })
		modelsByMake[strings.ToLower(mk)] = entries
	}
	for mk, models := range makeModels {
		for _, m := range models {
			if ml := strings.ToLower(m); modelCount[ml] == 1 {
				uniqueModels[ml] = mk
				standalone = append(standalone, ml)
			}
		}
	}
	sort.Slice(standalone, func(i, j int) bool {
		if len(standalone[i]) != len(standalone[j]) {
			return len(standalone[i]) > len(standalone[j])
		}
		return standalone[i] < standalone[j]
	})

	names := make([]string, 0, len(makeAliases))
	for alias := range makeAliases {
		names = append(names, regexp.QuoteMeta(alias))
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	makeRe = regexp.MustCompile(`(?i)(?:^|[^\pL\pN])(` + strings.Join(names, "|") + `)(?:[^\pL\pN]|$)`)
}

// Extract finds all vehicle mentions in text, highest confidence first.
func Extract(text string) []Match {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var matches []Match
	used := make(map[string]bool)

	for _, loc := range makeRe.FindAllStringSubmatchIndex(text, -1) {
		canonical := makeAliases[strings.ToLower(text[loc[2]:loc[3]])]
		if canonical == "" {
			continue
		}
		afterStart := loc[3]
		after := text[afterStart:]
		model, modelEnd := findModel(canonical, after)

		year := findYear(after[modelEnd:])
		if year == 0 {
			year = findYear(text[max(0, loc[2]-10):loc[2]])
		}

		var conf float64
		switch {
		case year > 0 && model != "":
			conf = 0.95
		case model != "":
			conf = 0.80
		case year > 0:
			conf = 0.70
		default:
			conf = 0.60
		}

		spanEnd := afterStart
		if model != "" {
			spanEnd = afterStart + modelEnd
		}
		key := matchKey(canonical, model, year)
		if used[key] {
			continue
		}
		used[key] = true
		matches = append(matches, Match{
			Make:       canonical,
			Model:      model,
			Year:       year,
			Confidence: conf,
			Span:       strings.TrimSpace(text[loc[2]:spanEnd]),
		})
	}

	matches = append(matches, findStandaloneModels(text, used)...)
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Confidence > matches[j].Confidence })
	return matches
}

// Best returns the single highest-confidence match, or nil.
func Best(text string) *Match {
	matches := Extract(text)
	if len(matches) == 0 {
		return nil
	}
	return &matches[0]
}

func matchKey(mk, model string, year int) string {
	return mk + "|" + model + "|" + strconv.Itoa(year)
}

// findModel looks for a model of mk at the start of the fragment following
// the make name.
func findModel(mk, after string) (string, int) {
	trimmed := strings.TrimLeftFunc(after, unicode.IsSpace)
	offset := len(after) - len(trimmed)
	lower := strings.ToLower(trimmed)
	for _, e := range modelsByMake[strings.ToLower(mk)] {
		if !strings.HasPrefix(lower, e.lower) {
			continue
		}
		if end := len(e.lower); end < len(lower) && isWordRune(rune(lower[end])) {
			continue
		}
		return e.canonical, offset + len(e.lower)
	}
	return "", 0
}

func findYear(s string) int {
	if m := yearPairRe.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		if y < 100 {
			y += 2000
			if y > 2050 {
				y -= 100
			}
		}
		if validYear(y) {
			return y
		}
	}
	if m := yearFullRe.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		if validYear(y) {
			return y
		}
	}
	return 0
}

func validYear(y int) bool { return y >= 1980 && y <= 2050 }

func isWordRune(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }

func findStandaloneModels(text string, used map[string]bool) []Match {
	var matches []Match
	lower := strings.ToLower(text)

	for _, ml := range standalone {
		mk := uniqueModels[ml]
		// Short or purely numeric names ("Up", "208", "911") are too ambiguous
		// without a make in front.
		if len(ml) <= 2 || strings.Trim(ml, "0123456789") == "" {
			continue
		}
		idx := strings.Index(lower, ml)
		if idx < 0 {
			continue
		}
		if idx > 0 && isWordRune(rune(lower[idx-1])) {
			continue
		}
		end := idx + len(ml)
		if end < len(lower) && isWordRune(rune(lower[end])) {
			continue
		}

		model := ml
		for _, m := range makeModels[mk] {
			if strings.EqualFold(m, ml) {
				model = m
				break
			}
		}
		if used[matchKey(mk, model, 0)] || coveredByLonger(mk, model, used) {
			continue
		}

		year := findYear(text[end:])
		if year == 0 {
			year = findYear(text[max(0, idx-12):idx])
		}
		conf := 0.50
		if year > 0 {
			conf = 0.75
		}
		key := matchKey(mk, model, year)
		if used[key] {
			continue
		}
		used[key] = true
		matches = append(matches, Match{
			Make:       mk,
			Model:      model,
			Year:       year,
			Confidence: conf,
			Span:       strings.TrimSpace(text[idx:end]),
		})
	}
	return matches
}

// coveredByLonger reports whether a model of the same make that contains
// model was already matched ("Onix Plus" covers "Onix").
func coveredByLonger(mk, model string, used map[string]bool) bool {
	prefix := mk + "|"
	for k := range used {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		if m, _, ok := strings.Cut(rest, "|"); ok && m != "" && strings.Contains(strings.ToLower(m), strings.ToLower(model)) {
			return true
		}
	}
	return false
}

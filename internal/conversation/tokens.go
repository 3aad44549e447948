package conversation

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

func tokenSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

var (
	yesTokens    = tokenSet("ya", "y", "yes", "iya", "ok", "oke")
	noTokens     = tokenSet("tidak", "t", "no", "n", "gak", "batal")
	cancelTokens = tokenSet("batal", "cancel")
	doneTokens   = tokenSet("selesai", "done", "sudah", "lanjut")
)

// normalize lower-cases a reply and strips surrounding blanks and trailing
// punctuation so "Ya!" and "ya" match the same token.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimRight(s, ".!? ")
}

func isYes(s string) bool    { return yesTokens[normalize(s)] }
func isNo(s string) bool     { return noTokens[normalize(s)] }
func isCancel(s string) bool { return cancelTokens[normalize(s)] }
func isDone(s string) bool   { return doneTokens[normalize(s)] }

// choice parses a 1-based selection among n options and returns the 0-based
// index.
func choice(s string, n int) (int, bool) {
	v, err := strconv.Atoi(normalize(s))
	if err != nil || v < 1 || v > n {
		return 0, false
	}
	return v - 1, true
}

// freeText accepts s when it has at least min characters after trimming.
func freeText(s string, min int) (string, bool) {
	s = strings.TrimSpace(s)
	return s, utf8.RuneCountInString(s) >= min
}

// command splits "proses #42" into ("proses", "#42").
func command(s string) (verb, arg string) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return "", ""
	}
	verb = strings.ToLower(fields[0])
	arg = strings.Join(fields[1:], " ")
	return verb, arg
}

func parseID(arg string) (int64, bool) {
	arg = strings.TrimPrefix(strings.TrimSpace(arg), "#")
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// amount reads a rupiah amount such as "150000", "150.000" or "Rp 150.000".
func amount(s string) (float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "rp")
	s = strings.NewReplacer(".", "", ",", "", " ", "").Replace(s)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return float64(n), true
}

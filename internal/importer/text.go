package importer

import (
	"strings"
	"unicode"

	"catalog-import-service/internal/models"
	"golang.org/x/text/unicode/norm"
)

var persianReplacer = strings.NewReplacer(
	// Arabic-Indic and extended (Persian) digits
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4",
	"۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
	"٫", ".", "٬", ",",
	// Arabic letter forms exported by older accounting software
	"ي", "ی", "ى", "ی", "ك", "ک", "ة", "ه",
	// zero-width non-joiner and tatweel
	"\u200c", " ", "\u0640", "",
)

// CleanText folds Persian/Arabic variants to one form, maps native digits to ASCII
// and collapses whitespace. Letter case is preserved.
func CleanText(s string) string {
	s = norm.NFKC.String(s)
	s = persianReplacer.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// MatchKey is the form used for substring matching of headers and names.
func MatchKey(s string) string {
	return strings.ToLower(CleanText(s))
}

// ProductSlug derives a product slug from its name and SKU. Slugify folds case
// and drops punctuation, so a SKU it would alter also gets its digest appended.
func ProductSlug(name, sku string) string {
	slug := Slugify(name + "-" + sku)
	if Slugify(sku) != sku {
		slug += "-" + models.SKUDigest(sku)
	}
	return slug
}

// Slugify builds a URL slug that keeps non-Latin letters, the way product pages
// in Persian are linked.
func Slugify(s string) string {
	s = strings.ToLower(CleanText(s))

	var b strings.Builder
	pendingDash := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || r == '_':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		case r == '-' || unicode.IsSpace(r):
			pendingDash = true
		}
	}
	return strings.Trim(b.String(), "-_")
}

package slug

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

var fold = strings.NewReplacer(
	"à", "a", "á", "a", "â", "a", "ä", "a", "ã", "a", "å", "a",
	"ç", "c", "è", "e", "é", "e", "ê", "e", "ë", "e",
	"ğ", "g", "ì", "i", "í", "i", "î", "i", "ï", "i", "ı", "i",
	"ñ", "n", "ò", "o", "ó", "o", "ô", "o", "ö", "o", "õ", "o", "ø", "o",
	"ş", "s", "ß", "ss", "ù", "u", "ú", "u", "û", "u", "ü", "u", "ý", "y", "ÿ", "y",
	"&", " and ", "'", "",
)

// Generate turns a display name into a lowercase, hyphen-separated token:
//
//	"T-Shirts & Tops" -> "t-shirts-and-tops"
//	"Çocuk Ürünleri"  -> "cocuk-urunleri"
func Generate(name string) string {
	s := fold.Replace(strings.ToLower(strings.TrimSpace(name)))
	return strings.Trim(nonAlnum.ReplaceAllString(s, "-"), "-")
}

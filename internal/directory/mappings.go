/*
Oxmail Groupware Server - Exchange-compatible groupware and mail suite.
Copyright © 2021-2024 The Oxmail Authors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package directory

import (
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/language"
)

// Pure mapping utilities. All lookups are case-insensitive and return zero
// values on a miss so callers can chain them with their own fallbacks.

// langCharsets maps a language (primary subtag) to the legacy charset used
// for its stores when the user record carries no explicit charset.
var langCharsets = map[string]string{
	"en": "windows-1252",
	"de": "windows-1252",
	"fr": "windows-1252",
	"es": "windows-1252",
	"it": "windows-1252",
	"pt": "windows-1252",
	"nl": "windows-1252",
	"sv": "windows-1252",
	"da": "windows-1252",
	"pl": "windows-1250",
	"cs": "windows-1250",
	"hu": "windows-1250",
	"ru": "windows-1251",
	"uk": "windows-1251",
	"bg": "windows-1251",
	"el": "windows-1253",
	"tr": "windows-1254",
	"he": "windows-1255",
	"ar": "windows-1256",
	"ja": "iso-2022-jp",
	"ko": "euc-kr",
	"zh": "gbk",
}

// lcids maps canonical language tags to Windows locale IDs. Only the
// languages the suite ships store templates for are listed; everything
// else falls back to 0 / "".
var lcids = map[string]uint32{
	"en-us": 0x0409,
	"en-gb": 0x0809,
	"de-de": 0x0407,
	"fr-fr": 0x040C,
	"es-es": 0x0C0A,
	"it-it": 0x0410,
	"pt-br": 0x0416,
	"nl-nl": 0x0413,
	"sv-se": 0x041D,
	"da-dk": 0x0406,
	"pl-pl": 0x0415,
	"cs-cz": 0x0405,
	"hu-hu": 0x040E,
	"ru-ru": 0x0419,
	"uk-ua": 0x0422,
	"el-gr": 0x0408,
	"tr-tr": 0x041F,
	"he-il": 0x040D,
	"ar-sa": 0x0401,
	"ja-jp": 0x0411,
	"ko-kr": 0x0412,
	"zh-cn": 0x0804,
	"zh-tw": 0x0404,
}

var ltags map[uint32]string

// cpids maps IANA charset names to Windows code page IDs.
var cpids = map[string]uint32{
	"us-ascii":     20127,
	"utf-7":        65000,
	"utf-8":        65001,
	"utf-16":       1200,
	"iso-8859-1":   28591,
	"iso-8859-2":   28592,
	"iso-8859-15":  28605,
	"windows-1250": 1250,
	"windows-1251": 1251,
	"windows-1252": 1252,
	"windows-1253": 1253,
	"windows-1254": 1254,
	"windows-1255": 1255,
	"windows-1256": 1256,
	"koi8-r":       20866,
	"iso-2022-jp":  50220,
	"shift_jis":    932,
	"euc-jp":       20932,
	"euc-kr":       949,
	"gbk":          936,
	"gb18030":      54936,
	"big5":         950,
}

var charsets map[uint32]string

// mimeExtensions maps MIME types to default file extensions for attachment
// naming; extensionMimes is the inverse used by the importer.
var mimeExtensions = map[string]string{
	"text/plain":                 "txt",
	"text/html":                  "html",
	"text/calendar":              "ics",
	"message/rfc822":             "eml",
	"image/jpeg":                 "jpg",
	"image/png":                  "png",
	"image/gif":                  "gif",
	"application/pdf":            "pdf",
	"application/zip":            "zip",
	"application/msword":         "doc",
	"application/vnd.ms-excel":   "xls",
	"application/octet-stream":   "bin",
	"application/rtf":            "rtf",
	"application/postscript":     "ps",
	"audio/mpeg":                 "mp3",
	"video/mp4":                  "mp4",
	"application/x-zip-compress": "zip",
}

var extensionMimes map[string]string

func init() {
	ltags = make(map[uint32]string, len(lcids))
	for tag, lcid := range lcids {
		if _, ok := ltags[lcid]; !ok {
			ltags[lcid] = tag
		}
	}
	charsets = make(map[uint32]string, len(cpids))
	for cs, cpid := range cpids {
		if _, ok := charsets[cpid]; !ok {
			charsets[cpid] = cs
		}
	}
	extensionMimes = make(map[string]string, len(mimeExtensions))
	for mime, ext := range mimeExtensions {
		if _, ok := extensionMimes[ext]; !ok {
			extensionMimes[ext] = mime
		}
	}
}

// LangToCharset maps a user language tag to the store charset for that
// language. Returns "" for unknown languages.
func LangToCharset(lang string) string {
	tag, err := language.Parse(strings.ReplaceAll(lang, "_", "-"))
	if err != nil {
		return ""
	}
	base, _ := tag.Base()
	return langCharsets[base.String()]
}

// ValidateCharset canonicalizes a charset name against the IANA index.
// Returns "" for names no encoding is known for.
func ValidateCharset(charset string) string {
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil || enc == nil {
		return ""
	}
	name, err := ianaindex.IANA.Name(enc)
	if err != nil {
		return ""
	}
	return strings.ToLower(name)
}

// LtagToLCID maps a language tag to its Windows locale ID, 0 on a miss.
func LtagToLCID(ltag string) uint32 {
	tag, err := language.Parse(strings.ReplaceAll(ltag, "_", "-"))
	if err != nil {
		return 0
	}
	if lcid, ok := lcids[strings.ToLower(tag.String())]; ok {
		return lcid
	}
	// Region-less tags match the first region of the language.
	base, _ := tag.Base()
	prefix := base.String() + "-"
	for t, lcid := range lcids {
		if strings.HasPrefix(t, prefix) {
			return lcid
		}
	}
	return 0
}

// LCIDToLtag maps a Windows locale ID back to a language tag, "" on a miss.
func LCIDToLtag(lcid uint32) string {
	return ltags[lcid]
}

// CharsetToCPID maps an IANA charset name to a Windows code page, 0 on a
// miss.
func CharsetToCPID(charset string) uint32 {
	return cpids[strings.ToLower(charset)]
}

// CPIDToCharset maps a Windows code page back to a charset name, "" on a
// miss.
func CPIDToCharset(cpid uint32) string {
	return charsets[cpid]
}

// MimeToExtension maps a MIME type to a default file extension, "" on a
// miss.
func MimeToExtension(mime string) string {
	return mimeExtensions[strings.ToLower(mime)]
}

// ExtensionToMime maps a file extension to a MIME type, "" on a miss.
func ExtensionToMime(ext string) string {
	return extensionMimes[strings.ToLower(strings.TrimPrefix(ext, "."))]
}

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
	"os"
	"path/filepath"
	"testing"
)

func TestLangToCharset(t *testing.T) {
	for _, tc := range []struct {
		lang string
		want string
	}{
		{"en", "windows-1252"},
		{"en_US", "windows-1252"},
		{"ru", "windows-1251"},
		{"ja", "iso-2022-jp"},
		{"xx-unknown", ""},
		{"", ""},
	} {
		if got := LangToCharset(tc.lang); got != tc.want {
			t.Errorf("%q: wanted %q, got %q", tc.lang, tc.want, got)
		}
	}
}

func TestValidateCharset(t *testing.T) {
	if got := ValidateCharset("UTF-8"); got != "utf-8" {
		t.Errorf("UTF-8: %q", got)
	}
	if got := ValidateCharset("no-such-charset"); got != "" {
		t.Errorf("bogus charset: %q", got)
	}
}

func TestLCIDRoundTrip(t *testing.T) {
	if got := LtagToLCID("en-US"); got != 0x0409 {
		t.Errorf("en-US: %04X", got)
	}
	if got := LtagToLCID("de"); got != 0x0407 {
		t.Errorf("region-less de: %04X", got)
	}
	if got := LtagToLCID("zz"); got != 0 {
		t.Errorf("unknown: %04X", got)
	}
	if got := LCIDToLtag(0x0409); got != "en-us" {
		t.Errorf("0409: %q", got)
	}
	if got := LCIDToLtag(0xFFFF); got != "" {
		t.Errorf("unknown lcid: %q", got)
	}
}

func TestCPIDRoundTrip(t *testing.T) {
	if got := CharsetToCPID("UTF-8"); got != 65001 {
		t.Errorf("utf-8: %d", got)
	}
	if got := CPIDToCharset(65001); got != "utf-8" {
		t.Errorf("65001: %q", got)
	}
	if got := CharsetToCPID("nope"); got != 0 {
		t.Errorf("unknown charset: %d", got)
	}
}

func TestMimeExtensions(t *testing.T) {
	if got := MimeToExtension("Application/PDF"); got != "pdf" {
		t.Errorf("pdf: %q", got)
	}
	if got := ExtensionToMime(".pdf"); got != "application/pdf" {
		t.Errorf(".pdf: %q", got)
	}
	if got := MimeToExtension("x/y"); got != "" {
		t.Errorf("unknown mime: %q", got)
	}
}

func TestFileDirectory(t *testing.T) {
	tmp := t.TempDir()
	domains := filepath.Join(tmp, "domains.list")
	users := filepath.Join(tmp, "users.list")
	if err := os.WriteFile(domains, []byte("example.org\nexample.net\n"), 0o666); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(users, []byte(
		"alice@example.org\t/var/mail/alice\ten\tUTC\n"+
			"bob@example.org\t/var/mail/bob\n"), 0o666); err != nil {
		t.Fatal(err)
	}

	fd, err := LoadFileDirectory(domains, users)
	if err != nil {
		t.Fatal(err)
	}

	if !fd.CheckDomain("EXAMPLE.ORG") || fd.CheckDomain("other.example") {
		t.Fatal("domain check broken")
	}

	info, err := fd.UserInfo("Alice@example.org")
	if err != nil || info.HomeDir != "/var/mail/alice" || info.Lang != "en" || info.Timezone != "UTC" {
		t.Fatalf("alice: %+v %v", info, err)
	}
	info, err = fd.UserInfo("bob@example.org")
	if err != nil || info.HomeDir != "/var/mail/bob" || info.Lang != "" {
		t.Fatalf("bob: %+v %v", info, err)
	}
	// Unknown users read as empty records (no such mailbox).
	info, err = fd.UserInfo("nobody@example.org")
	if err != nil || info.HomeDir != "" {
		t.Fatalf("nobody: %+v %v", info, err)
	}

	id, _, _, err := fd.UserIDs("alice@example.org")
	if err != nil || id != 1 {
		t.Fatalf("alice ID: %d %v", id, err)
	}
	name, err := fd.Username(2)
	if err != nil || name != "bob@example.org" {
		t.Fatalf("user 2: %q %v", name, err)
	}
}

//go:build go1.18

package domain

import "testing"

// FuzzParseInformationID checks parsing never panics and never yields a
// non-positive id without an error.
func FuzzParseInformationID(f *testing.F) {
	f.Add("")
	f.Add("1")
	f.Add("-1")
	f.Add("9223372036854775807")
	f.Add("9223372036854775808")
	f.Add("'; DROP TABLE information_records;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseInformationID(input)
		if err == nil && id <= 0 {
			t.Errorf("ParseInformationID(%q) = %d without error", input, id)
		}
		if err != nil && id != 0 {
			t.Errorf("ParseInformationID(%q) returned id %d with error", input, id)
		}
	})
}

package formats

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/geoconvert/geoconvert/internal/geoerr"
)

// decodeBytes returns raw decoded as UTF-8 text. UTF-8 input passes
// through unchanged (after a validity check); latin-1 input is
// transcoded via charmap.ISO8859_1, the encoding fallback spec §4.6
// names explicitly.
func decodeBytes(raw []byte, encoding Encoding) ([]byte, error) {
	if encoding == EncodingLatin1 {
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
		if err != nil {
			return nil, geoerr.Wrap(err, geoerr.InvalidInput, "formats: decoding as latin-1")
		}
		return out, nil
	}
	if !utf8.Valid(raw) {
		return nil, geoerr.New(geoerr.InvalidInput, "formats: input is not valid UTF-8")
	}
	return raw, nil
}

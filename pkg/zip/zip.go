package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
)

// Asset is one generated artifact destined for an archive.
type Asset struct {
	Filename string
	Data     []byte
}

// Archive packs the assets into a single zip payload. Duplicate filenames are
// disambiguated with a numeric suffix so every asset survives the packing.
func Archive(assets []Asset) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	seen := make(map[string]int, len(assets))
	for _, asset := range assets {
		name := asset.Filename
		if n := seen[name]; n > 0 {
			name = fmt.Sprintf("%d-%s", n, name)
		}
		seen[asset.Filename]++

		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("create archive entry %q: %w", name, err)
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil, fmt.Errorf("write archive entry %q: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

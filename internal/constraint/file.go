package constraint

import (
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/lychee-technology/formtab"
)

const pdfMIME = "application/pdf"

// decodedSize is the byte size of a base64 payload without decoding it.
func decodedSize(b64 string) int {
	padding := 0
	for i := len(b64) - 1; i >= 0 && b64[i] == '='; i-- {
		padding++
	}
	return len(b64)*3/4 - padding
}

// sniff detects the MIME type and extension of data.
func sniff(data []byte) (string, string) {
	mt := mimetype.Detect(data)
	mimeType, _, err := mime.ParseMediaType(mt.String())
	if err != nil {
		mimeType = mt.String()
	}
	if strings.Contains(strings.ToLower(mimeType), "pdf") {
		return pdfMIME, ".pdf"
	}
	ext := mt.Extension()
	if ext == "" {
		if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return mimeType, ext
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

func checkFile(action formtab.Action, value any, attribute string) error {
	b64, ok := value.(string)
	if !ok {
		return formtab.NewTypeMismatchError(attribute, formtab.PrimitiveFile, value)
	}

	if action.Max != nil {
		maxKiB, ok := toFloat(action.Max)
		if !ok {
			return formtab.NewInvalidSpecError(attribute, fmt.Sprintf("file max size %v is not a number", action.Max))
		}
		if size := decodedSize(b64); float64(size) > maxKiB*1024 {
			return violationf(attribute, "file of %d bytes exceeds %v KiB", size, action.Max)
		}
	}

	if action.Accept == nil || (action.Accept.MIME == "" && action.Accept.Extension == "") {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return violationf(attribute, "file is not valid base64")
	}
	mimeType, ext := sniff(data)

	if want := action.Accept.MIME; want != "" && !strings.EqualFold(mimeType, strings.TrimSpace(want)) {
		return violationf(attribute, "file type %s does not match %s", mimeType, want)
	}
	if want := action.Accept.Extension; want != "" && normalizeExt(ext) != normalizeExt(want) {
		return violationf(attribute, "file extension %q does not match %q", ext, want)
	}
	return nil
}

package mailer

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

const mimeOctetStream = "application/octet-stream"

// compressedExtensions are content encodings rather than content types,
// the real type of the payload is unknown.
var compressedExtensions = map[string]struct{}{
	".gz":  {},
	".bz2": {},
	".xz":  {},
	".z":   {},
	".br":  {},
}

type attachmentPart struct {
	Filename       string
	MediaType      string
	MediaParams    map[string]string
	TransferEncode string
	Content        []byte
}

// loadAttachment checks and reads ref, guessing the content type from the
// file extension.
func loadAttachment(ref attachmentRef, limit int64) (attachmentPart, error) {
	var part attachmentPart

	info, err := os.Stat(ref.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return part, fmt.Errorf("%w: %q", ErrAttachmentNotFound, ref.Path)
		}
		return part, fmt.Errorf("stat attachment %q: %w", ref.Path, err)
	}
	if !info.Mode().IsRegular() {
		return part, fmt.Errorf("%w: %q", ErrAttachmentNotAFile, ref.Path)
	}
	if limit > 0 && info.Size() > limit {
		return part, fmt.Errorf("%w: %q is %d bytes", ErrAttachmentTooLarge, ref.Path, info.Size())
	}

	part.Content, err = os.ReadFile(ref.Path)
	if err != nil {
		return part, fmt.Errorf("read attachment %q: %w", ref.Path, err)
	}

	part.Filename = ref.DisplayName
	if part.Filename == "" {
		part.Filename = filepath.Base(ref.Path)
	}

	part.MediaType, part.MediaParams = guessContentType(ref.Path)
	part.TransferEncode = transferEncoding(part.MediaType)

	return part, nil
}

func guessContentType(path string) (string, map[string]string) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := compressedExtensions[ext]; ok {
		return mimeOctetStream, nil
	}

	ctype := mime.TypeByExtension(ext)
	if ctype == "" {
		return mimeOctetStream, nil
	}

	mediaType, params, err := mime.ParseMediaType(ctype)
	if err != nil {
		return mimeOctetStream, nil
	}

	return mediaType, params
}

// transferEncoding routes text parts to quoted-printable and every other
// kind (image, audio, generic binary) to base64.
func transferEncoding(mediaType string) string {
	if strings.HasPrefix(mediaType, "text/") {
		return "quoted-printable"
	}
	return "base64"
}

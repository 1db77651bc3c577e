package usecase

import (
	"fmt"
	"strings"

	"ReaderSync/internal/domain"
)

// ValidateDeletePath rejects any removal target that is not a file directly addressable under folder.
func ValidateDeletePath(folder, p string) error {
	folder = strings.TrimSuffix(folder, "/")
	switch {
	case folder == "":
		return fmt.Errorf("%w: empty folder", domain.ErrUnsafePath)
	case !strings.HasPrefix(p, folder+"/"):
		return fmt.Errorf("%w: %q is outside %q", domain.ErrUnsafePath, p, folder)
	case strings.Contains(p, "../") || strings.Contains(p, "/.."):
		return fmt.Errorf("%w: %q contains a parent segment", domain.ErrUnsafePath, p)
	case len(p) <= len(folder)+2:
		return fmt.Errorf("%w: %q names no file", domain.ErrUnsafePath, p)
	}
	return nil
}

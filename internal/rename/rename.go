// Package rename implements Renamer (C10): building the canonical output
// filename and moving or copying a video into place, the way the
// teacher's organizer moves an encoded file into its library slot —
// rename first, fall back to copy across devices, never overwrite
// silently.
package rename

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"mkvmatch/internal/logging"
	"mkvmatch/internal/model"
)

var sanitizeRe = regexp.MustCompile(`[<>:"/\\|?*]`)

// Renamer finalizes a matched video's on-disk name and location.
type Renamer struct {
	logger *slog.Logger
}

// NewRenamer constructs a Renamer.
func NewRenamer(logger *slog.Logger) *Renamer {
	return &Renamer{logger: logging.NewComponentLogger(logger, "renamer")}
}

// TargetName builds "{series} - {s_e_format}{title_suffix}{orig_suffix}",
// sanitized of characters the filesystem would reject.
func TargetName(series string, info model.EpisodeInfo, origPath string) string {
	suffix := filepath.Ext(origPath)
	titleSuffix := ""
	if strings.TrimSpace(info.Title) != "" {
		titleSuffix = " - " + info.Title
	}
	name := fmt.Sprintf("%s - %s%s%s", series, info.SEFormat(), titleSuffix, suffix)
	return sanitize(name)
}

func sanitize(name string) string {
	return strings.TrimSpace(sanitizeRe.ReplaceAllString(name, ""))
}

// Apply finalizes result's file: building the target name, resolving the
// destination directory (outputDir if set, else the source's parent),
// and moving or copying the source there. It returns the final path, or
// the original path unchanged if the target already exists and differs
// from the source (a collision, logged as a warning rather than
// overwritten).
func (r *Renamer) Apply(result *model.MatchResult, series, outputDir string) (string, error) {
	source := result.OriginalFile
	targetName := TargetName(series, result.EpisodeInfo, source)

	destDir := outputDir
	if destDir == "" {
		destDir = filepath.Dir(source)
	} else if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	dest := filepath.Join(destDir, targetName)

	absSource, err := filepath.Abs(source)
	if err != nil {
		return "", fmt.Errorf("resolve source path: %w", err)
	}
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return "", fmt.Errorf("resolve destination path: %w", err)
	}
	if absSource == absDest {
		result.MatchedFile = source
		return source, nil
	}

	if _, statErr := os.Stat(dest); statErr == nil {
		logging.WarnWithContext(r.logger, "rename target already exists, leaving source untouched", "rename_collision",
			logging.String(logging.FieldVideo, source), logging.String("target", dest))
		result.MatchedFile = source
		return source, nil
	}

	if outputDir != "" {
		if err := copyFile(dest, source); err != nil {
			return "", fmt.Errorf("copy into output dir: %w", err)
		}
	} else if err := moveOrCopy(r.logger, source, dest); err != nil {
		return "", err
	}

	result.MatchedFile = dest
	return dest, nil
}

// moveOrCopy renames source to dest, falling back to copy+delete when the
// rename crosses a filesystem device boundary.
func moveOrCopy(logger *slog.Logger, source, dest string) error {
	renameErr := os.Rename(source, dest)
	if renameErr == nil {
		return nil
	}

	var linkErr *os.LinkError
	if errors.As(renameErr, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
		if err := copyFile(dest, source); err != nil {
			return fmt.Errorf("cross-device copy: %w", err)
		}
		if err := os.Remove(source); err != nil {
			logging.WarnWithContext(logger, "failed to remove source after cross-device copy", "rename_source_cleanup_failed",
				logging.String(logging.FieldVideo, source), logging.Error(err))
		}
		return nil
	}

	return fmt.Errorf("rename %q to %q: %w", source, dest, renameErr)
}

// copyFile copies src to dst, verifying the written byte count and
// content hash match the source.
func copyFile(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	srcInfo, err := in.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, dstHasher), io.TeeReader(in, srcHasher))
	if err != nil {
		return err
	}
	if written != srcInfo.Size() {
		return fmt.Errorf("short copy: wrote %d of %d bytes", written, srcInfo.Size())
	}
	if fmt.Sprintf("%x", srcHasher.Sum(nil)) != fmt.Sprintf("%x", dstHasher.Sum(nil)) {
		return errors.New("copy verification hash mismatch")
	}
	return nil
}

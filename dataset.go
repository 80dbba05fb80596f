package pix2pix_go

import (
	"io/ioutil"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

var imagePatterns = []string{"*.jp*g", "*.png"}

// IndexDataset Collects image files of every class subdirectory of root.
//
// Subdirectories are visited in lexical order, within each one JPEG files go first and PNG files second.
// Missing root gives empty list.
//
func IndexDataset(root string, logger *log.Logger) ([]string, error) {
	if logger == nil {
		logger = log.New(os.Stdout, "", 0)
	}
	paths := []string{}
	entries, err := ioutil.ReadDir(root)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "Can't read dataset directory '%s'", root)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		found := []string{}
		for _, pattern := range imagePatterns {
			matches, err := filepath.Glob(filepath.Join(dir, pattern))
			if err != nil {
				return nil, errors.Wrapf(err, "Can't glob '%s' in '%s'", pattern, dir)
			}
			found = append(found, matches...)
		}
		for i := range found {
			abs, err := filepath.Abs(found[i])
			if err != nil {
				return nil, errors.Wrapf(err, "Can't resolve path '%s'", found[i])
			}
			found[i] = abs
		}
		logger.Printf("load : %s , N : %d\n", dir, len(found))
		paths = append(paths, found...)
	}
	logger.Printf("total : %d\n", len(paths))
	return paths, nil
}

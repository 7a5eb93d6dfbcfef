package curlfuzz

import (
	"os"
	"path/filepath"
)

// File is a payload loaded whole from the filesystem.
type File struct {
	Name    string
	Size    int64
	Payload []byte
}

// FileFrom loads a file from the filesystem and wraps it in our native File type.
func FileFrom(path string) (*File, error) {
	fileBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return &File{
		Name:    filepath.Base(path),
		Size:    int64(len(fileBytes)),
		Payload: fileBytes,
	}, nil
}

// FilesFromDirectory returns a list of Files in a directory, skipping subdirectories.
func FilesFromDirectory(directory string) ([]*File, error) {
	entries, err := os.ReadDir(directory)
	files := []*File{}
	if err != nil {
		return files, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		file, err := FileFrom(filepath.Join(directory, entry.Name()))
		if err != nil {
			return files, err
		}

		files = append(files, file)
	}

	return files, nil
}

// PayloadsFromDirectory returns the contents of every file in a directory as a payload.
// Use it for payloads a line based wordlist can't hold, such as multi-line documents.
func PayloadsFromDirectory(directory string) ([]string, error) {
	files, err := FilesFromDirectory(directory)
	if err != nil {
		return nil, err
	}

	payloads := make([]string, 0, len(files))
	for _, file := range files {
		payloads = append(payloads, string(file.Payload))
	}
	return payloads, nil
}

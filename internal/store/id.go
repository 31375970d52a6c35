package store

import (
	"fmt"

	"github.com/google/uuid"
)

const idMaxAttempts = 5

// GenerateID returns a new random task id. It retries on collisions using the
// provided exists function.
func GenerateID(exists func(string) (bool, error)) (string, error) {
	for i := 0; i < idMaxAttempts; i++ {
		id := uuid.NewString()
		if exists == nil {
			return id, nil
		}
		ok, err := exists(id)
		if err != nil {
			return "", err
		}
		if !ok {
			return id, nil
		}
	}
	return "", fmt.Errorf("unable to generate unique id")
}

// ValidID reports whether id has the canonical task id form.
func ValidID(id string) bool {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return parsed.String() == id
}

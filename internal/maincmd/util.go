package maincmd

import "os"

func readSource(name string) ([]byte, error) {
	return os.ReadFile(name)
}

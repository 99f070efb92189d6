package registry

import (
	"os"
	"path/filepath"
)

const exampleID = "example_crawler"

const exampleMain = `import time
import random
import logging

logging.basicConfig(
    level=logging.INFO,
    format='%(asctime)s - %(levelname)s - %(message)s'
)

def main():
    logging.info("example crawler starting")

    for i in range(10):
        logging.info(f"processing item {i+1}")
        time.sleep(random.uniform(0.5, 2))

        if random.random() < 0.2:
            logging.warning(f"item {i+1} produced a warning")

    logging.info("example crawler finished")

if __name__ == "__main__":
    main()
`

const exampleDefinition = `{
    "name": "Example Crawler",
    "description": "A demo crawler that exercises the run pipeline",
    "version": "1.0",
    "author": "system",
    "parameters": {}
}
`

// EnsureExample materializes a demo crawler so a fresh install is
// demonstrable out of the box. Idempotent: existing files are left alone.
func (r *Registry) EnsureExample() error {
	dir := filepath.Join(r.root, exampleID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	files := map[string]string{
		DefaultEntryPoint: exampleMain,
		DefinitionFile:    exampleDefinition,
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

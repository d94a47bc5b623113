package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harrylevesque/steamguard/internal/crypto"
	"github.com/harrylevesque/steamguard/internal/utils"
)

func main() {
	out := flag.String("out", filepath.Join(utils.GetDataDir(), "master.key"), "where to write the hex master key")
	force := flag.Bool("force", false, "overwrite an existing key file")
	flag.Parse()

	if err := writeMasterKey(*out, *force); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Master key written to %s\n", *out)
	fmt.Printf("Set STEAMGUARD_MASTER_KEY_FILE=%s or export its contents as MASTER_KEY_HEX.\n", *out)
}

// writeMasterKey writes a fresh hex-encoded master key to path, refusing to
// overwrite an existing file unless force is set.
func writeMasterKey(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists. Refusing to overwrite", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	hexKey := hex.EncodeToString(crypto.MustRandom(crypto.MasterKeySize))
	return os.WriteFile(path, []byte(hexKey+"\n"), 0600)
}

package localfs

import (
	"fmt"

	"xdao.co/ans104/storage"
	"xdao.co/ans104/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "localfs",
		Description: "Local filesystem payload store (directory)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		Keys:        []string{"dir"},
		Open: func(cfg map[string]string) (storage.CAS, func() error, error) {
			dir := cfg["dir"]
			if dir == "" {
				return nil, nil, fmt.Errorf("localfs: missing config key %q", "dir")
			}
			cas, err := New(dir)
			return cas, nil, err
		},
	})
}

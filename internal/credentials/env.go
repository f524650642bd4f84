package credentials

import (
	"os"
	"strings"
)

func envLookup(service, key string) (string, bool) {
	name := "LABTOPO_" + strings.ToUpper(service) + "_" + strings.ToUpper(key)
	v, ok := os.LookupEnv(name)
	return v, ok
}

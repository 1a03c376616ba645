package cache

import appconfig "github.com/ptrus/mobile-pipeline/config"

func appconfigFor(backend string) appconfig.CacheConfig {
	return appconfig.CacheConfig{Backend: backend, URL: "http://127.0.0.1:1", Dir: "unused"}
}

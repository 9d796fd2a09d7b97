package config

import (
	"strings"

	goenv "github.com/Netflix/go-env"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Overlay holds the transport-level settings allowed to come from
// either an environment variable or a CLI flag, layered on top of the
// parsed document. This is deliberately narrow - it is not the whole
// Configuration, just the `CC_*` / flag surface.
type Overlay struct {
	Port    int    `env:"CC_PORT"`
	HostIP4 string `env:"CC_HOST_IP4"`
	HostIP6 string `env:"CC_HOST_IP6"`
	DBus    bool   `env:"CC_DBUS"`
}

// LoadOverlay reads CC_* environment variables via Netflix/go-env
// struct-tag binding, then lets viper apply the same keys bound to
// cobra flags as a higher-priority override - `--port` wins over
// CC_PORT, which wins over the daemon's built-in defaults, scoped to
// just this narrow transport-settings surface rather than the whole
// document.
func LoadOverlay(flags *pflag.FlagSet) (Overlay, error) {
	var o Overlay
	if _, err := goenv.UnmarshalFromEnviron(&o); err != nil {
		return o, err
	}

	v := viper.New()
	v.SetEnvPrefix("CC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if flags != nil {
		if f := flags.Lookup("port"); f != nil {
			_ = v.BindPFlag("port", f)
		}
		if f := flags.Lookup("host"); f != nil {
			_ = v.BindPFlag("host_ip4", f)
		}
	}

	if v.IsSet("port") {
		o.Port = v.GetInt("port")
	}
	if v.IsSet("host_ip4") {
		o.HostIP4 = v.GetString("host_ip4")
	}
	return o, nil
}

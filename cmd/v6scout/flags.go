package main

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// bindFlags binds config keys to the named flags.
func bindFlags(v *viper.Viper, lookup func(string) *pflag.Flag, keys map[string]string) error {
	for key, name := range keys {
		f := lookup(name)
		if f == nil {
			return fmt.Errorf("flag --%s is not defined", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

// Package config loads and validates the gatehouse configuration.
//
// Values come from three layers, later ones winning: built-in defaults,
// the YAML file, and GATEHOUSE_* environment variables. Secrets such as the
// session signing key and the superuser password are expected to arrive
// through the environment.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Site.Name, cfg.SessionTTL())
package config

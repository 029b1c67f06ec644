package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report keys the way they are spelled in the file.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks field constraints and the rules that span fields.
func Validate(cfg *Config) error {
	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	p := cfg.Session.Persistence
	switch p.Type {
	case "file", "badger", "sqlite":
		if p.Path == "" {
			return fmt.Errorf("session.persistence.path is required for %s persistence", p.Type)
		}
	case "redis":
		if p.Redis.Addr == "" {
			return errors.New("session.persistence.redis.addr is required for redis persistence")
		}
	}

	if cfg.Auth.SuFallback && cfg.Auth.SuTimeout >= cfg.Auth.ResponseTimeout {
		return fmt.Errorf("auth.su_timeout (%s) must be shorter than auth.response_timeout (%s)",
			cfg.Auth.SuTimeout, cfg.Auth.ResponseTimeout)
	}
	if cfg.Auth.SuFallback {
		switch cfg.Auth.SuUser {
		case "":
			return errors.New("auth.su_user is required when auth.su_fallback is on")
		case "root":
			return errors.New("auth.su_user must not be root")
		}
	}
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			return errors.New("metrics.listen is required when metrics are enabled")
		}
		if cfg.Metrics.Listen == cfg.Server.Listen {
			return errors.New("metrics.listen must differ from server.listen")
		}
	}
	if cfg.Privileges.Group != "" && cfg.Privileges.User == "" {
		return errors.New("privileges.group needs privileges.user")
	}
	return nil
}

// describe turns "Config.auth.hash_iterations" + gte/1000 into a message.
func describe(fe validator.FieldError) string {
	key := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return key + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", key, fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", key, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", key, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s=%s", key, fe.Tag(), fe.Param())
	}
}

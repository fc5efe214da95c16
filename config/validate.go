package config

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"

	"gridex-go/order"
)

var validate = validator.New()

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

// Validate checks struct tags first, then the rules that span fields.
func Validate(cfg AppConfig) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return ErrInvalid(fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
		return fmt.Errorf("validate config: %w", err)
	}

	if !common.IsHexAddress(cfg.Admin) {
		return ErrInvalid(fmt.Sprintf("admin %q is not a hex address", cfg.Admin))
	}
	if cfg.AdminAddress() == (common.Address{}) {
		return ErrInvalid("admin must not be the zero address")
	}
	fee := cfg.Engine.OneshotFeeBps
	if fee < order.MinFeeBps || fee > order.MaxFeeBps {
		return ErrInvalid(fmt.Sprintf("engine.oneshot_fee_bps %d out of [%d, %d]", fee, order.MinFeeBps, order.MaxFeeBps))
	}
	if len(cfg.Engine.AllowedStrategies) == 0 {
		return ErrInvalid("engine.allowed_strategies must list at least one strategy")
	}
	if cfg.HotReload.Enabled && cfg.HotReload.Cooldown < 0 {
		return ErrInvalid("hot_reload.cooldown must be >= 0")
	}
	if cfg.Alert.Throttle < 0 {
		return ErrInvalid("alert.throttle must be >= 0")
	}
	return nil
}

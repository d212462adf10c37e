// Package scenario reproduce guiones YAML (mint, approve, create, compras,
// resolución y claims) contra un market.Service y su ledger de tokens.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/predmarket/internal/domain"
)

// Acciones que un paso puede ejecutar.
const (
	ActionMint      = "mint"
	ActionApprove   = "approve"
	ActionCreate    = "create"
	ActionBuyShares = "buy_shares"
	ActionBuyAmount = "buy_amount"
	ActionAdvance   = "advance"
	ActionResolve   = "resolve"
	ActionClaim     = "claim"
	ActionReport    = "report"
	ActionBalances  = "balances"
)

// Nombres reservados que no hace falta declarar en accounts.
const (
	AccountMarket   = "market"   // cuenta escrow del servicio
	AccountResolver = "resolver" // cuenta autorizada a resolver
)

// Script es un guion completo.
type Script struct {
	Name     string            `yaml:"name" validate:"required"`
	Accounts map[string]string `yaml:"accounts" validate:"dive,keys,required,endkeys,eth_addr"`
	Steps    []Step            `yaml:"steps" validate:"required,min=1,dive"`
}

// Step es una acción del guion. Qué campos aplican depende de Action.
type Step struct {
	Action   string `yaml:"action" validate:"required,oneof=mint approve create buy_shares buy_amount advance resolve claim report balances"`
	Account  string `yaml:"account"`  // quien ejecuta (o recibe, en mint)
	Spender  string `yaml:"spender"`  // approve; por defecto "market"
	Amount   string `yaml:"amount"`   // tokens o shares en decimal legible
	Market   *int64 `yaml:"market"`   // por defecto el último creado
	Outcome  string `yaml:"outcome"`  // A/B, yes/no
	Question string `yaml:"question"` // create
	LabelA   string `yaml:"label_a"`
	LabelB   string `yaml:"label_b"`
	Duration string `yaml:"duration"` // create y advance: "24h", "86400s"

	// ExpectError es el nombre del error esperado (p.ej. "NoWinningShares").
	// Si está presente el paso debe fallar con exactamente ese error.
	ExpectError string `yaml:"expect_error"`
}

var errorsByName = map[string]error{
	"InvalidQuantity":       domain.ErrInvalidQuantity,
	"InvalidDuration":       domain.ErrInvalidDuration,
	"InsufficientBudget":    domain.ErrInsufficientBudget,
	"InsufficientAllowance": domain.ErrInsufficientAllowance,
	"InsufficientBalance":   domain.ErrInsufficientBalance,
	"MarketClosed":          domain.ErrMarketClosed,
	"TooEarly":              domain.ErrTooEarly,
	"AlreadyResolved":       domain.ErrAlreadyResolved,
	"NoWinningShares":       domain.ErrNoWinningShares,
	"AlreadyClaimed":        domain.ErrAlreadyClaimed,
	"Unauthorized":          domain.ErrUnauthorized,
	"MarketNotFound":        domain.ErrMarketNotFound,
	"InvalidOutcome":        domain.ErrInvalidOutcome,
	"NotResolved":           domain.ErrNotResolved,
	"InvalidMarket":         domain.ErrInvalidMarket,
	"InvalidAddress":        domain.ErrInvalidAddress,
}

// ErrorByName devuelve el error de dominio con ese nombre. Acepta el prefijo
// "Err" y no distingue mayúsculas.
func ErrorByName(name string) (error, bool) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "Err")
	for k, err := range errorsByName {
		if strings.EqualFold(k, name) {
			return err, true
		}
	}
	return nil, false
}

// ErrorNames devuelve los nombres aceptados por expect_error, ordenados.
func ErrorNames() []string {
	names := make([]string, 0, len(errorsByName))
	for k := range errorsByName {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Load lee y valida un guion desde un archivo YAML.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario.Load: read %q: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scenario.Load: %s: %w", path, err)
	}
	return s, nil
}

// Parse decodifica y valida un guion. Campos desconocidos son un error.
func Parse(data []byte) (*Script, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Script
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("scenario.Parse: decode YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate comprueba la estructura y los campos que cada acción necesita.
func (s *Script) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(s); err != nil {
		return fmt.Errorf("scenario.Validate: %w", err)
	}

	var errs []error
	for i, st := range s.Steps {
		if err := st.validate(s); err != nil {
			errs = append(errs, fmt.Errorf("step %d (%s): %w", i+1, st.Action, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("scenario.Validate: %w", err)
	}
	return nil
}

func (st Step) validate(s *Script) error {
	needs := func(field, value string) error {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("missing %s", field)
		}
		return nil
	}

	var errs []error
	switch st.Action {
	case ActionMint, ActionApprove, ActionBuyShares, ActionBuyAmount:
		errs = append(errs, needs("account", st.Account), needs("amount", st.Amount))
		if st.Amount != "" {
			if _, err := domain.ParseAmount(st.Amount); err != nil {
				errs = append(errs, err)
			}
		}
	case ActionCreate:
		errs = append(errs, needs("account", st.Account), needs("duration", st.Duration))
	case ActionAdvance:
		errs = append(errs, needs("duration", st.Duration))
	case ActionResolve:
		errs = append(errs, needs("outcome", st.Outcome))
	case ActionClaim:
		errs = append(errs, needs("account", st.Account))
	}

	if st.Action == ActionBuyShares || st.Action == ActionBuyAmount {
		errs = append(errs, needs("outcome", st.Outcome))
	}
	if st.Outcome != "" {
		if _, err := domain.ParseOutcome(st.Outcome); err != nil {
			errs = append(errs, err)
		}
	}
	if st.Duration != "" {
		if _, err := time.ParseDuration(st.Duration); err != nil {
			errs = append(errs, fmt.Errorf("duration: %w", err))
		}
	}
	for _, name := range []string{st.Account, st.Spender} {
		if name != "" && !s.knows(name) {
			errs = append(errs, fmt.Errorf("unknown account %q", name))
		}
	}
	if st.ExpectError != "" {
		if _, ok := ErrorByName(st.ExpectError); !ok {
			errs = append(errs, fmt.Errorf("unknown expect_error %q (known: %s)",
				st.ExpectError, strings.Join(ErrorNames(), ", ")))
		}
	}
	return errors.Join(errs...)
}

func (s *Script) knows(name string) bool {
	if name == AccountMarket || name == AccountResolver {
		return true
	}
	_, ok := s.Accounts[name]
	return ok
}

// AccountAddresses devuelve las direcciones declaradas en accounts.
func (s *Script) AccountAddresses() map[string]common.Address {
	out := make(map[string]common.Address, len(s.Accounts))
	for name, hex := range s.Accounts {
		out[name] = common.HexToAddress(hex)
	}
	return out
}

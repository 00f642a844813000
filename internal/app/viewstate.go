package app

import (
	"encoding/json"
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/distr-cli/internal/errors"
	"github.com/ggonzalez94/distr-cli/internal/model"
	"github.com/ggonzalez94/distr-cli/internal/rewards"
	"github.com/ggonzalez94/distr-cli/internal/wallet"
)

// View state is the last query result per account, chain and workflow. It
// gates the estimate-fee and claim commands.

func viewPrefix(account wallet.Account) string {
	return fmt.Sprintf("view|%d|%s|", account.Chain.ID, strings.ToLower(account.Address.Hex()))
}

func viewKey(account wallet.Account, kind rewards.Kind) string {
	return viewPrefix(account) + string(kind)
}

func (s *runtimeState) saveView(account wallet.Account, result rewards.Result) (model.ViewStatus, error) {
	if err := s.ensureCache(); err != nil {
		return model.ViewStatus{}, err
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return model.ViewStatus{}, clierr.Wrap(clierr.CodeInternal, "encode view state", err)
	}
	if err := s.cache.Set(viewKey(account, result.Kind), payload, s.settings.ViewTTL); err != nil {
		return model.ViewStatus{}, clierr.Wrap(clierr.CodeInternal, "store view state", err)
	}
	return model.ViewStatus{Status: "stored"}, nil
}

// loadView returns the last stored result of kind; ok is false when none
// exists or it expired.
func (s *runtimeState) loadView(account wallet.Account, kind rewards.Kind) (rewards.Result, model.ViewStatus, bool, error) {
	if err := s.ensureCache(); err != nil {
		return rewards.Result{}, model.ViewStatus{}, false, err
	}
	res, err := s.cache.Get(viewKey(account, kind))
	if err != nil {
		return rewards.Result{}, model.ViewStatus{}, false, clierr.Wrap(clierr.CodeInternal, "read view state", err)
	}
	if !res.Hit || res.Expired {
		return rewards.Result{}, model.ViewStatus{Status: "miss"}, false, nil
	}
	var result rewards.Result
	if err := json.Unmarshal(res.Value, &result); err != nil {
		s.logger.Warn("discarding unreadable view state")
		return rewards.Result{}, model.ViewStatus{Status: "miss"}, false, nil
	}
	return result, model.ViewStatus{Status: "hit", AgeMS: res.Age.Milliseconds()}, true, nil
}

func (s *runtimeState) clearView(account wallet.Account) (int64, error) {
	if err := s.ensureCache(); err != nil {
		return 0, err
	}
	n, err := s.cache.DeletePrefix(viewPrefix(account))
	if err != nil {
		return 0, clierr.Wrap(clierr.CodeInternal, "clear view state", err)
	}
	return n, nil
}

func viewBypass() model.ViewStatus {
	return model.ViewStatus{Status: "bypass"}
}

package hook

import (
	cfg_hook "github.com/guojinxiang/ndvi-time-series/pkg/configs/hook"
)

// Build makes a webhook firing at the configured URLs, with merge
// combining the responses when more than one URL is configured.
func Build[T any, R any](cfg cfg_hook.WebHook, merge func(a, b R) R) Web[T, R] {
	return Web[T, R]{
		BeforeURL: cfg.Before,
		AfterURL:  cfg.After,
		Merge:     merge,
	}
}

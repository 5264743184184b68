package app

import (
	"fmt"

	"maat-go/internal/config"
	"maat-go/internal/fs"
	"maat-go/internal/maat"
)

// ServiceOptions translates the config into maat.Options.
func ServiceOptions(cfg *config.Config) (maat.Options, error) {
	interval, err := cfg.Interval()
	if err != nil {
		return maat.Options{}, err
	}

	rules, err := exclusionRules(cfg.Collections.Exclude)
	if err != nil {
		return maat.Options{}, err
	}
	matcher, err := fs.NewExclusionMatcher(rules)
	if err != nil {
		return maat.Options{}, fmt.Errorf("collections.exclude: %w", err)
	}

	exts := maat.DefaultExtensions()
	for kind, custom := range map[maat.AssetKind][]string{
		maat.KindModels:    cfg.Collections.Models,
		maat.KindPanoramas: cfg.Collections.Panoramas,
		maat.KindMedia:     cfg.Collections.Media,
	} {
		if len(custom) > 0 {
			exts[kind] = custom
		}
	}

	return maat.Options{
		Name:           cfg.Name,
		ScenesDir:      cfg.ScenesDir(),
		CollectionsDir: cfg.CollectionsDir(),
		WebappsDir:     cfg.WebappsDir(),
		Interval:       interval,
		FollowSymlinks: cfg.Scan.Follow(),
		SharedOwner:    cfg.Collections.SharedOwner,
		Extensions:     exts,
		Exclusions:     matcher,
		StaffPicks:     cfg.Staff.Picks,
	}, nil
}

func exclusionRules(in []config.ExcludeRule) ([]fs.ExclusionRule, error) {
	out := make([]fs.ExclusionRule, 0, len(in))
	for i, r := range in {
		rule := fs.ExclusionRule{
			Segment:          r.Segment,
			Extensions:       r.Extensions,
			ExceptExtensions: r.ExceptExtensions,
		}
		for _, k := range r.Kinds {
			kind := maat.AssetKind(k)
			switch kind {
			case maat.KindModels, maat.KindPanoramas, maat.KindMedia:
			default:
				return nil, fmt.Errorf("collections.exclude[%d]: unknown kind %q", i, k)
			}
			rule.Kinds = append(rule.Kinds, kind)
		}
		out = append(out, rule)
	}
	return out, nil
}

// Package generator runs one generation: it loads declaration snapshots,
// normalizes them with patches, merges platform variants and derives the
// Call Plans of every configured namespace.
//
// Example:
//
//	cfg, err := config.Load(".")
//	if err != nil {
//		return err
//	}
//	gen := generator.New(cfg)
//	report, err := gen.Run(ctx)
//	if err != nil {
//		return err
//	}
//	if err := report.Err(); err != nil {
//		logger.Warn("unresolved references", zap.Error(err))
//	}
//	return gen.WritePlans(out)
package generator

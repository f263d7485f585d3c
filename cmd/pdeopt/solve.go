package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdekit/pdeopt/criteria"
	"github.com/pdekit/pdeopt/model"
	"github.com/pdekit/pdeopt/newton"
	"github.com/pdekit/pdeopt/optimize"
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve the 1D Poisson optimal control demo problem",
	Long: `Solve minimizes a tracking-type cost functional subject to the 1D
Poisson equation (optionally with a cubic reaction term) using the
configured optimization algorithm. Options can be given as flags or in
a config file.`,
	RunE: runSolve,
}

func init() {
	f := solveCmd.Flags()
	f.String("config", "", "Config file (yaml/toml/json)")
	f.String("algorithm", "lbfgs", "Algorithm: gd, cg, lbfgs, newton, pdas")
	f.String("cg-formula", "fr", "CG beta formula: fr, pr, hs, hybrid")
	f.Int("n", 64, "Number of control degrees of freedom")
	f.Float64("alpha", 1e-4, "Tikhonov regularization weight")
	f.Float64("rtol", 1e-6, "Relative tolerance")
	f.Float64("atol", 0, "Absolute tolerance")
	f.Int("max-iter", 200, "Maximum outer iterations")
	f.String("convergence", "rel", "Convergence type: rel, abs, combined")
	f.String("norm", "l2", "Norm type: l2, linf")
	f.Int("memory", 5, "LBFGS memory size")
	f.Bool("semilinear", false, "Use the semilinear state equation")
	f.Bool("damped", true, "Damp the inner Newton state solves")
	f.Float64("lower", math.NaN(), "Lower control bound")
	f.Float64("upper", math.NaN(), "Upper control bound")
	f.String("plot", "", "Write a convergence-history plot to this file")
	f.Bool("verbose", false, "Print per-iteration output")
}

func runSolve(cmd *cobra.Command, args []string) error {

	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	algo, err := parseAlgorithm(v.GetString("algorithm"))
	if err != nil {
		return err
	}
	formula, err := parseCGFormula(v.GetString("cg-formula"))
	if err != nil {
		return err
	}
	conv, err := parseConvergence(v.GetString("convergence"))
	if err != nil {
		return err
	}
	normType, err := parseNorm(v.GetString("norm"))
	if err != nil {
		return err
	}

	n := v.GetInt("n")
	crit := criteria.Criterion{
		Convergence: conv,
		Norm:        normType,
		Rtol:        v.GetFloat64("rtol"),
		Atol:        v.GetFloat64("atol"),
	}

	cfg := optimize.Config{
		Algorithm: algo,
		CG:        formula,
		Criterion: crit,
		MaxIter:   v.GetInt("max-iter"),
		Memory:    v.GetInt("memory"),
	}
	lower, upper := v.GetFloat64("lower"), v.GetFloat64("upper")
	if !math.IsNaN(lower) || !math.IsNaN(upper) {
		bounds := make([]optimize.Bound, n)
		for i := range bounds {
			bounds[i] = optimize.Bound{Lower: lower, Upper: upper}
		}
		cfg.Bounds = bounds
	}

	yd := func(x float64) float64 { return x * (1 - x) }
	var prob optimize.Problem
	if v.GetBool("semilinear") {
		sp, err := model.NewSemilinearPoisson1D(n, v.GetFloat64("alpha"), yd, newton.Config{
			Criterion: criteria.Criterion{Convergence: criteria.ConvCombined, Rtol: 1e-12, Atol: 1e-12},
			MaxIter:   50,
			Damped:    v.GetBool("damped"),
		})
		if err != nil {
			return err
		}
		prob = sp
	} else {
		lp, err := model.NewPoisson1D(n, v.GetFloat64("alpha"), yd)
		if err != nil {
			return err
		}
		prob = lp
	}

	var optLog *optimize.Logger
	if v.GetBool("verbose") {
		optLog = &optimize.Logger{Level: optimize.LogEval, Msg: os.Stdout}
	}

	driver, err := optimize.New(prob, n, cfg, optLog)
	if err != nil {
		return err
	}

	slog.Info("starting optimization", "algorithm", v.GetString("algorithm"), "n", n)

	res, err := driver.Solve(cmd.Context(), make([]float64, n))
	if err != nil {
		var nc *optimize.NotConvergedError
		if errors.As(err, &nc) {
			slog.Error("optimization failed", "reason", nc.Reason,
				"iterations", nc.Iterations, "gradient_norm", nc.GradientNorm)
		}
		return err
	}

	slog.Info("optimization converged",
		"iterations", res.NumIter,
		"evaluations", res.NumEval,
		"cost", res.Cost,
		"gradient_norm", res.GradientNorm)

	if path := v.GetString("plot"); path != "" {
		if err := writeHistoryPlot(path, res.History); err != nil {
			return fmt.Errorf("writing plot: %w", err)
		}
		slog.Info("wrote convergence plot", "path", path)
	}
	return nil
}

func parseAlgorithm(s string) (optimize.Algorithm, error) {
	switch s {
	case "gd":
		return optimize.GradientDescent, nil
	case "cg":
		return optimize.ConjugateGradient, nil
	case "lbfgs":
		return optimize.LBFGS, nil
	case "newton":
		return optimize.NewtonCG, nil
	case "pdas":
		return optimize.PDAS, nil
	}
	return 0, fmt.Errorf("%w: unknown algorithm %q", optimize.ErrInvalidConfiguration, s)
}

func parseCGFormula(s string) (optimize.CGFormula, error) {
	switch s {
	case "fr":
		return optimize.FletcherReeves, nil
	case "pr":
		return optimize.PolakRibiere, nil
	case "hs":
		return optimize.HestenesStiefel, nil
	case "hybrid":
		return optimize.HybridCG, nil
	}
	return 0, fmt.Errorf("%w: unknown CG formula %q", optimize.ErrInvalidConfiguration, s)
}

func parseConvergence(s string) (criteria.Convergence, error) {
	switch s {
	case "rel":
		return criteria.ConvRelative, nil
	case "abs":
		return criteria.ConvAbsolute, nil
	case "combined":
		return criteria.ConvCombined, nil
	}
	return 0, fmt.Errorf("%w: unknown convergence type %q", optimize.ErrInvalidConfiguration, s)
}

func parseNorm(s string) (criteria.Norm, error) {
	switch s {
	case "l2":
		return criteria.NormL2, nil
	case "linf":
		return criteria.NormLinf, nil
	}
	return 0, fmt.Errorf("%w: unknown norm type %q", optimize.ErrInvalidConfiguration, s)
}

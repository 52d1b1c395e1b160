package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"
	_ "github.com/pbnjay/grate/xls"

	"deskquant/derivs/internal/bond"
	"deskquant/derivs/internal/calibrate"
	"deskquant/derivs/internal/config"
	"deskquant/derivs/internal/dates"
	"deskquant/derivs/internal/logging"
	"deskquant/derivs/internal/marketdata"
	"deskquant/derivs/internal/output"
)

var (
	ENV_BUCKET_NAME   = "DERIVS_CURVE_BUCKET_NAME"
	ENV_BUCKET_PREFIX = "DERIVS_CURVE_BUCKET_PREFIX"
	ENV_SOURCE        = "DERIVS_CURVE_SOURCE"
)

// fitCurve collects today's gilt prices, fits the discount curve to them
// and stores both the prices and the fitted nodes.
func fitCurve(ctx context.Context) error {
	bucketName := os.Getenv(ENV_BUCKET_NAME)
	if bucketName == "" {
		return fmt.Errorf("%s is not set", ENV_BUCKET_NAME)
	}
	dst := &output.S3Path{Bucket: bucketName, Prefix: os.Getenv(ENV_BUCKET_PREFIX)}

	source := os.Getenv(ENV_SOURCE)
	if source == "" {
		source = marketdata.SourceDMO
	}

	cfg, err := config.Load(config.New(), "")
	if err != nil {
		return err
	}
	logger := logging.WithRunID(logging.WithTool(logging.NewLoggerWithConfig(cfg.Log), "fit-curve-lambda"), uuid.NewString())
	ctx = logging.WithLogger(ctx, logger)

	grid, err := cfg.Curve.GridPeriods()
	if err != nil {
		return err
	}
	opts, err := cfg.Curve.Options()
	if err != nil {
		return err
	}

	collector, err := marketdata.NewCollector(source)
	if err != nil {
		return err
	}
	collected, err := collector.Collect(ctx, time.Now())
	if err != nil {
		return err
	}
	for _, f := range collected.Failures {
		logger.Warn().Err(f.Err).Msg("Gilt skipped")
	}

	client, err := output.NewS3Client(ctx, "")
	if err != nil {
		return err
	}

	gilts := output.Batch[*bond.Gilt]{Name: collected.Source, Date: collected.SettlementDate, Records: collected.Bonds}
	outPath, err := output.StoreToS3(ctx, gilts, client, dst)
	if err != nil {
		return err
	}
	logger.Info().Str("path", outPath).Int("bonds", len(collected.Bonds)).Msg("Stored gilts")

	bonds, err := collected.Benchmarks()
	if err != nil {
		return err
	}
	eval := dates.NewEvalContext(collected.SettlementDate, dates.UK)
	problem, err := calibrate.NewProblem(eval, calibrate.Basket{Bonds: bonds}, grid, opts)
	if err != nil {
		return err
	}
	res, err := calibrate.Fit(ctx, problem)
	if err != nil {
		return err
	}

	nodes := output.Batch[calibrate.NodeRecord]{Name: "curve-nodes", Date: res.AsOf, Records: res.Records()}
	outPath, err = output.StoreToS3(ctx, nodes, client, dst)
	if err != nil {
		return err
	}
	logger.Info().Str("path", outPath).Bool("converged", res.Converged).Msg("Stored curve")

	return nil
}

func responseWithFailure(rec events.SQSMessage) events.SQSEventResponse {
	return events.SQSEventResponse{
		BatchItemFailures: []events.SQSBatchItemFailure{
			{
				ItemIdentifier: rec.MessageId,
			},
		},
	}
}

func handler(ctx context.Context, request events.SQSEvent) (events.SQSEventResponse, error) {
	err := fitCurve(ctx)

	if err != nil && len(request.Records) > 0 {
		// a single trigger message per run
		rec := request.Records[0]
		return responseWithFailure(rec), fmt.Errorf("failed to fit curve: %w", err)
	}

	return events.SQSEventResponse{}, nil
}

func main() {
	lambda.Start(handler)
}

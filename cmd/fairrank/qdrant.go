package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ricesearch/fairrank/internal/config"
	"github.com/ricesearch/fairrank/internal/dataset"
	"github.com/ricesearch/fairrank/internal/evaluation"
	"github.com/ricesearch/fairrank/internal/qdrant"
)

func qdrantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qdrant",
		Short: "Audit rankings served by a Qdrant collection",
	}

	cmd.PersistentFlags().String("url", "", "Qdrant HTTP URL (overrides config)")

	cmd.AddCommand(qdrantRankCmd(), qdrantCollectionsCmd())
	return cmd
}

func qdrantRankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank COLLECTION",
		Short: "Run a query against a collection and evaluate the result list",
		Long: `Rank queries COLLECTION with a dense vector and treats the results as a
ranking. Each --feature names a payload field whose values are the groups;
points lacking the field are grouped as "unknown". Relevance comes from
--relevance-field when set and present, otherwise from the similarity score.`,
		Example: `  fairrank qdrant rank jobs --vector 0.1,0.3,0.2 --feature gender
  fairrank qdrant rank jobs --vector-file q.txt --feature candidate.region \
      --match country=de --relevance-field label --save audit.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: runQdrantRank,
	}

	cmd.Flags().String("vector", "", "comma-separated query vector")
	cmd.Flags().String("vector-file", "", "file holding the comma- or whitespace-separated query vector")
	cmd.Flags().String("using", "", "named vector to query")
	cmd.Flags().Uint64("limit", qdrant.DefaultRankLimit, "ranking depth")
	cmd.Flags().StringToString("match", nil, "payload keyword filter field=value (repeatable)")
	cmd.Flags().String("relevance-field", "", "numeric payload field holding true relevance")
	cmd.Flags().StringSlice("feature", nil, "payload field used as sensitive feature (repeatable)")
	cmd.Flags().String("name", "", "dataset name (default: collection name)")
	cmd.Flags().String("save", "", "also write the ranked dataset to this .yaml or .json file")

	return cmd
}

func runQdrantRank(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	format, err := outputFormatFlag(cmd)
	if err != nil {
		return err
	}

	vector, err := vectorFlag(cmd)
	if err != nil {
		return err
	}
	using, _ := cmd.Flags().GetString("using")
	limit, _ := cmd.Flags().GetUint64("limit")
	match, _ := cmd.Flags().GetStringToString("match")
	relevanceField, _ := cmd.Flags().GetString("relevance-field")
	features, _ := cmd.Flags().GetStringSlice("feature")
	name, _ := cmd.Flags().GetString("name")

	client, err := qdrantClient(cmd, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ds, err := client.Rank(cmd.Context(), qdrant.RankRequest{
		Name:           name,
		Collection:     args[0],
		Vector:         vector,
		Using:          using,
		Limit:          limit,
		Match:          match,
		RelevanceField: relevanceField,
		Features:       features,
	})
	if err != nil {
		return err
	}
	log.Debug("Ranked collection", "collection", args[0], "items", ds.Items())

	if path, _ := cmd.Flags().GetString("save"); path != "" {
		if err := saveDataset(path, ds); err != nil {
			return err
		}
	}

	svc := evaluation.NewService(nil, nil, nil, log, cfg.Evaluation)
	rep, err := svc.Evaluate(cmd.Context(), ds)
	if err != nil {
		return err
	}
	return writeReport(cmd.OutOrStdout(), format, rep)
}

func qdrantCollectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List collections available for ranking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			client, err := qdrantClient(cmd, cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			return listCollections(cmd.Context(), cmd, client)
		},
	}
}

func listCollections(ctx context.Context, cmd *cobra.Command, client *qdrant.Client) error {
	serverVersion, err := client.HealthCheck(ctx)
	if err != nil {
		return err
	}
	names, err := client.ListCollections(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Qdrant %s, %d collections\n\n", serverVersion, len(names))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPOINTS\tSEGMENTS\tSTATUS")
	for _, name := range names {
		info, err := client.GetCollectionInfo(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", info.Name, info.PointsCount, info.SegmentsCount, info.Status)
	}
	return tw.Flush()
}

func qdrantClient(cmd *cobra.Command, cfg *config.Config) (*qdrant.Client, error) {
	qcfg := cfg.Qdrant
	if url, _ := cmd.Flags().GetString("url"); url != "" {
		qcfg.URL = url
	}
	clientCfg, err := qdrant.ClientConfigFrom(qcfg)
	if err != nil {
		return nil, err
	}
	return qdrant.NewClient(clientCfg)
}

func vectorFlag(cmd *cobra.Command) ([]float32, error) {
	raw, _ := cmd.Flags().GetString("vector")
	if path, _ := cmd.Flags().GetString("vector-file"); path != "" {
		if raw != "" {
			return nil, fmt.Errorf("--vector and --vector-file are mutually exclusive")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		raw = string(data)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("a query vector is required (--vector or --vector-file)")
	}
	return parseVector(raw)
}

func parseVector(raw string) ([]float32, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	vector := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("vector component %d: %w", i, err)
		}
		vector[i] = float32(v)
	}
	return vector, nil
}

func saveDataset(path string, ds *dataset.Dataset) error {
	format, err := dataset.ParseFormat(filepath.Ext(path))
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ds.Encode(f, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

package evaluate

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Reporter writes evaluation results to disk in several formats.
type Reporter struct {
	results    *Results
	outputPath string
}

// NewReporter creates a new reporter.
func NewReporter(results *Results, outputPath string) *Reporter {
	return &Reporter{
		results:    results,
		outputPath: outputPath,
	}
}

// GenerateReport generates all report formats.
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateSummary(); err != nil {
		return err
	}
	if err := r.generateClassReport(); err != nil {
		return err
	}
	return r.generateJSONReport()
}

// generateSummary generates a human-readable summary.
func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, "evaluation_summary.txt")
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	fmt.Fprintf(file, "EVALUATION SUMMARY\n")
	fmt.Fprintf(file, "==================\n\n")
	fmt.Fprintf(file, "Evaluated At: %s\n", r.results.EvaluatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(file, "Rows: %d\n", r.results.Rows)
	fmt.Fprintf(file, "Accuracy: %.4f (%d/%d)\n", r.results.Accuracy, r.results.Correct, r.results.Rows)
	fmt.Fprintf(file, "Macro F1: %.4f\n\n", r.results.MacroF1)

	fmt.Fprintf(file, "PER-CLASS METRICS\n")
	fmt.Fprintf(file, "-----------------\n")
	for _, s := range r.results.Classes {
		fmt.Fprintf(file, "%s: support=%d precision=%.4f recall=%.4f f1=%.4f\n",
			s.Label, s.Support, s.Precision, s.Recall, s.F1)
	}

	fmt.Fprintf(file, "\nCONFUSION MATRIX (rows=truth, cols=predicted)\n")
	fmt.Fprintf(file, "---------------------------------------------\n")
	for i, row := range r.results.Confusion {
		fmt.Fprintf(file, "%-24s", r.results.Labels[i])
		for _, n := range row {
			fmt.Fprintf(file, " %6d", n)
		}
		fmt.Fprintf(file, "\n")
	}

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

// generateClassReport generates a CSV with one row per class.
func (r *Reporter) generateClassReport() error {
	csvPath := filepath.Join(r.outputPath, "class_metrics.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create class report: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Label", "Support", "Predicted", "Correct", "Precision", "Recall", "F1"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, s := range r.results.Classes {
		record := []string{
			s.Label,
			fmt.Sprintf("%d", s.Support),
			fmt.Sprintf("%d", s.Predicted),
			fmt.Sprintf("%d", s.Correct),
			fmt.Sprintf("%.4f", s.Precision),
			fmt.Sprintf("%.4f", s.Recall),
			fmt.Sprintf("%.4f", s.F1),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	log.Info().Str("file", csvPath).Msg("Class metrics report generated")
	return nil
}

// generateJSONReport generates a JSON report with all data.
func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, "evaluation_results.json")

	report := map[string]interface{}{
		"results":      r.results,
		"generated_at": time.Now().UTC(),
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

// PrintSummary prints a summary to console.
func (r *Reporter) PrintSummary() {
	fmt.Println("\n=== EVALUATION RESULTS ===")
	fmt.Printf("Rows: %d\n", r.results.Rows)
	fmt.Printf("Accuracy: %.4f\n", r.results.Accuracy)
	fmt.Printf("Macro F1: %.4f\n", r.results.MacroF1)
	for _, s := range r.results.Classes {
		fmt.Printf("%s: precision=%.4f recall=%.4f f1=%.4f (support %d)\n",
			s.Label, s.Precision, s.Recall, s.F1, s.Support)
	}
	fmt.Println("==========================")
}

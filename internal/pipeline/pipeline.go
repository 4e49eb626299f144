// Package pipeline orchestrates one reconciliation pass: load schemas,
// extract and validate every metadata source, reconcile by identifier,
// export the canonical dataset and aggregate run artifacts. Fatal errors
// stop before any data is processed; everything else is collected into
// the run report alongside the best achievable output.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seqlab/warehouse/internal/aggregate"
	"github.com/seqlab/warehouse/internal/config"
	"github.com/seqlab/warehouse/internal/export"
	"github.com/seqlab/warehouse/internal/models"
	"github.com/seqlab/warehouse/internal/reconcile"
	"github.com/seqlab/warehouse/internal/schema"
	"github.com/seqlab/warehouse/internal/tabular"
	"github.com/seqlab/warehouse/internal/targets"
	"github.com/seqlab/warehouse/internal/validate"
)

// Experiment workbooks embed the experiment id in their filename.
var exptIDPattern = regexp.MustCompile(`(SW|PC|SL)[A-Za-z]{2}[0-9]{3}`)

// Sequence summary files produced by the downstream pipeline tools.
var sequenceFilePatterns = []*regexp.Regexp{
	regexp.MustCompile(`summary\.bamstats.*\.csv$`),
	regexp.MustCompile(`summary\.bedcov.*\.csv$`),
	regexp.MustCompile(`summary\.sample_qc.*\.csv$`),
}

const (
	exptSheet = "expt_metadata"
	rxnSheet  = "rxn_metadata"
)

// Schemas bundles the loaded descriptors for every source kind.
type Schemas struct {
	Experimental *schema.Schema
	Reaction     *schema.Schema
	Sample       *schema.Schema
	Sequence     *schema.Schema
}

// Result is everything one run produced.
type Result struct {
	Report    *models.RunReport
	Records   []*models.ReconciledRecord
	Rows      []map[string]any
	Fields    []schema.FieldSpec
	Schemas   *Schemas
	Aggregate *aggregate.Report
}

// Pipeline runs the reconciliation and aggregation passes.
type Pipeline struct {
	cfg *config.Config
	log *zap.Logger
}

func New(cfg *config.Config, log *zap.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, log: log}
}

// LoadSchemas parses all configured schema descriptors. A SchemaError
// here is fatal: nothing runs against a malformed descriptor.
func (p *Pipeline) LoadSchemas() (*Schemas, error) {
	sc := p.cfg.Schemas
	var (
		s   Schemas
		err error
	)
	if s.Experimental, err = schema.Load("experimental", sc.Experimental); err != nil {
		return nil, err
	}
	if s.Reaction, err = schema.Load("reaction", sc.Reaction); err != nil {
		return nil, err
	}
	if s.Sample, err = schema.Load("sample", sc.Sample); err != nil {
		return nil, err
	}
	if s.Sequence, err = schema.Load("sequence", sc.Sequence); err != nil {
		return nil, err
	}
	// Joins are keyed on each schema's identifier; a descriptor without
	// one cannot participate.
	for _, sch := range []*schema.Schema{s.Experimental, s.Reaction, s.Sample, s.Sequence} {
		if sch.IdentifierField() == nil {
			return nil, fmt.Errorf("schema %s declares no identifier field", sch.Name())
		}
	}
	return &s, nil
}

// Run executes one full pass.
func (p *Pipeline) Run() (*Result, error) {
	report := &models.RunReport{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Status:    models.RunStatusRunning,
	}
	p.log.Info("starting run", zap.String("run_id", report.ID))

	schemas, err := p.LoadSchemas()
	if err != nil {
		report.Status = models.RunStatusError
		report.Error = err.Error()
		return &Result{Report: report, Schemas: schemas}, err
	}

	expRecords, err := p.loadExperimental(schemas, report)
	if err != nil {
		report.Status = models.RunStatusError
		report.Error = err.Error()
		return &Result{Report: report, Schemas: schemas}, err
	}
	sampleRecords := p.loadSample(schemas, report)
	seqRecords := p.loadSequence(schemas, report)

	tables := []reconcile.Table{
		{
			Kind:           models.TableExperimental,
			Records:        validate.Joinable(expRecords, schemas.Reaction),
			IdentifierAttr: schemas.Reaction.IdentifierField().Attribute,
			Cardinality:    reconcile.One,
			Primary:        true,
		},
		{
			Kind:           models.TableSample,
			Records:        validate.Joinable(sampleRecords, schemas.Sample),
			IdentifierAttr: schemas.Sample.IdentifierField().Attribute,
			Cardinality:    reconcile.One,
			Primary:        true,
		},
		{
			Kind:           models.TableSequence,
			Records:        validate.Joinable(seqRecords, schemas.Sequence),
			IdentifierAttr: schemas.Sequence.IdentifierField().Attribute,
			Cardinality:    reconcile.Many,
			Primary:        true,
		},
	}

	records, recIssues := reconcile.Reconcile(tables, reconcile.DefaultOptions())
	report.ReconcileIssues = recIssues
	report.RecordCount = len(records)
	p.log.Info("reconciled dataset",
		zap.Int("records", len(records)),
		zap.Int("issues", len(recIssues)))

	fields := export.CombineFields(schemas.Experimental, schemas.Reaction, schemas.Sample, schemas.Sequence)
	rows := export.Flatten(records)
	if err := export.WriteCSV(p.cfg.ExportPath(), fields, rows); err != nil {
		report.Status = models.RunStatusError
		report.Error = err.Error()
		return &Result{Report: report, Schemas: schemas, Records: records}, err
	}

	aggReport := p.runAggregation(report)

	report.FinishedAt = time.Now().UTC()
	report.Status = models.RunStatusComplete
	if err := p.writeReport(report); err != nil {
		p.log.Warn("writing run report", zap.Error(err))
	}

	return &Result{
		Report:    report,
		Records:   records,
		Rows:      rows,
		Fields:    fields,
		Schemas:   schemas,
		Aggregate: aggReport,
	}, nil
}

// loadExperimental reads every experiment workbook: the single-row
// expt_metadata sheet and the many-row rxn_metadata sheet, then folds
// the experiment-level attributes onto each reaction record.
func (p *Pipeline) loadExperimental(schemas *Schemas, report *models.RunReport) ([]models.ValidatedRecord, error) {
	dir := p.cfg.Paths.ExperimentalDir
	if dir == "" {
		return nil, nil
	}
	paths, err := findExperimentWorkbooks(dir)
	if err != nil {
		return nil, err
	}

	exptIDAttr := schemas.Experimental.IdentifierField().Attribute

	var all []models.ValidatedRecord
	for _, path := range paths {
		fileID := exptIDPattern.FindString(filepath.Base(path))

		exptRows, err := tabular.NewExcelLoader(exptSheet).Load(path)
		if err != nil {
			p.reportUnreadable(report, models.TableExperimental, path, err)
			continue
		}
		rxnRows, err := tabular.NewExcelLoader(rxnSheet).Load(path)
		if err != nil {
			p.reportUnreadable(report, models.TableExperimental, path, err)
			continue
		}

		exptRecords, exptIssues := validate.Validate(exptRows, schemas.Experimental, path)
		rxnRecords, rxnIssues := validate.Validate(rxnRows, schemas.Reaction, path)
		issues := append(exptIssues, rxnIssues...)

		if len(exptRecords) != 1 {
			issues = append(issues, models.Issue{
				Kind:     models.IssueMalformedRow,
				Table:    models.TableExperimental,
				Location: models.SourceLocation{Path: path, Sheet: exptSheet},
				Detail:   fmt.Sprintf("expected 1 experiment row, found %d", len(exptRecords)),
			})
		}

		if len(exptRecords) > 0 {
			expt := exptRecords[0]
			sheetID := expt.Identifier(exptIDAttr)
			if spec := schemas.Experimental.Resolve("EXPT_TYPE"); spec != nil {
				if cur := expt.Attributes[spec.Attribute]; cur == nil {
					expt.Attributes[spec.Attribute] = experimentType(sheetID)
				}
			}
			if fileID != "" && sheetID != "" && fileID != sheetID {
				issues = append(issues, models.Issue{
					Kind:       models.IssueConflict,
					Attribute:  exptIDAttr,
					Identifier: sheetID,
					Table:      models.TableExperimental,
					Location:   expt.Location,
					Detail:     fmt.Sprintf("filename says %s, sheet says %s", fileID, sheetID),
				})
			}
			// Fold experiment-level attributes onto each reaction row;
			// the reaction's own values win where both declare a field.
			for i := range rxnRecords {
				for attr, v := range expt.Attributes {
					if v == nil {
						continue
					}
					if cur, ok := rxnRecords[i].Attributes[attr]; !ok || cur == nil {
						rxnRecords[i].Attributes[attr] = v
					}
				}
			}
		}

		report.ValidationIssues = append(report.ValidationIssues, issues...)
		report.Sources = append(report.Sources, models.SourceSummary{
			Table:  models.TableExperimental,
			Path:   path,
			Rows:   len(rxnRecords),
			Issues: len(issues),
		})
		all = append(all, rxnRecords...)
	}
	return all, nil
}

func (p *Pipeline) loadSample(schemas *Schemas, report *models.RunReport) []models.ValidatedRecord {
	path := p.cfg.Paths.SampleFile
	if path == "" {
		return nil
	}
	registry := tabular.NewRegistry(tabular.NewDelimitedLoader(), tabular.NewExcelLoader(""))
	loader, err := registry.FindLoader(path)
	if err != nil {
		p.reportUnreadable(report, models.TableSample, path, err)
		return nil
	}
	rows, err := loader.Load(path)
	if err != nil {
		p.reportUnreadable(report, models.TableSample, path, err)
		return nil
	}
	records, issues := validate.Validate(rows, schemas.Sample, path)
	report.ValidationIssues = append(report.ValidationIssues, issues...)
	report.Sources = append(report.Sources, models.SourceSummary{
		Table:  models.TableSample,
		Path:   path,
		Rows:   len(records),
		Issues: len(issues),
	})
	return records
}

// loadSequence walks the sequencing-output tree for per-run summary
// files, tags each row with the experiment id recovered from its path
// and validates against the sequence schema.
func (p *Pipeline) loadSequence(schemas *Schemas, report *models.RunReport) []models.ValidatedRecord {
	dir := p.cfg.Paths.SequenceDir
	if dir == "" {
		return nil
	}
	paths, err := findSequenceSummaries(dir)
	if err != nil {
		p.reportUnreadable(report, models.TableSequence, dir, err)
		return nil
	}

	exptField := exptSourceField(schemas.Sequence)
	loader := tabular.NewDelimitedLoader()

	var all []models.ValidatedRecord
	for _, path := range paths {
		rows, err := loader.Load(path)
		if err != nil {
			p.reportUnreadable(report, models.TableSequence, path, err)
			continue
		}
		if exptField != "" {
			if exptID := exptIDPattern.FindString(path); exptID != "" {
				for i := range rows {
					if _, ok := rows[i].Cells[exptField]; !ok {
						rows[i].Cells[exptField] = exptID
					}
				}
			}
		}
		records, issues := validate.Validate(rows, schemas.Sequence, path)
		report.ValidationIssues = append(report.ValidationIssues, issues...)
		report.Sources = append(report.Sources, models.SourceSummary{
			Table:  models.TableSequence,
			Path:   path,
			Rows:   len(records),
			Issues: len(issues),
		})
		all = append(all, records...)
	}
	return all
}

func (p *Pipeline) runAggregation(report *models.RunReport) *aggregate.Report {
	if p.cfg.Paths.TargetsFile == "" || p.cfg.Paths.DestinationDir == "" {
		return nil
	}
	descriptors, err := targets.LoadDescriptors(p.cfg.Paths.TargetsFile)
	if err != nil {
		report.AggregateIssues = append(report.AggregateIssues, models.Issue{
			Kind:   models.IssueCopyFailed,
			Detail: err.Error(),
		})
		return nil
	}
	resolved, err := targets.ResolveAll(p.cfg.Paths.SequenceDir, descriptors)
	if err != nil {
		report.AggregateIssues = append(report.AggregateIssues, models.Issue{
			Kind:   models.IssueCopyFailed,
			Detail: err.Error(),
		})
		return nil
	}

	opts := aggregate.Options{}
	if p.cfg.Aggregate.AmbiguousPolicy == "newest" {
		opts.Ambiguous = aggregate.AmbiguousNewest
	}
	aggReport, err := aggregate.Aggregate(resolved, p.cfg.Paths.DestinationDir, opts)
	if err != nil {
		report.AggregateIssues = append(report.AggregateIssues, models.Issue{
			Kind:   models.IssueCopyFailed,
			Detail: err.Error(),
		})
		return nil
	}
	report.AggregateIssues = append(report.AggregateIssues, aggReport.Issues...)
	p.log.Info("aggregated targets",
		zap.Int("targets", len(aggReport.Results)),
		zap.Int("issues", len(aggReport.Issues)))
	return aggReport
}

func (p *Pipeline) reportUnreadable(report *models.RunReport, table models.TableKind, path string, err error) {
	p.log.Warn("unreadable source", zap.String("path", path), zap.Error(err))
	report.ValidationIssues = append(report.ValidationIssues, models.Issue{
		Kind:     models.IssueSourceUnreadable,
		Table:    table,
		Location: models.SourceLocation{Path: path},
		Detail:   err.Error(),
	})
	report.Sources = append(report.Sources, models.SourceSummary{
		Table:      table,
		Path:       path,
		Unreadable: true,
	})
}

func (p *Pipeline) writeReport(report *models.RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p.cfg.ReportPath(), data, 0o644)
}

// findExperimentWorkbooks lists workbooks carrying an experiment id in
// their filename. Duplicate ids across files are a fatal input error:
// two workbooks claiming the same experiment cannot be reconciled.
func findExperimentWorkbooks(dir string) ([]string, error) {
	var paths []string
	seen := make(map[string]string)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		name := filepath.Base(path)
		ext := filepath.Ext(name)
		if ext != ".xlsx" && ext != ".xlsm" {
			return nil
		}
		// Lock/backup files left by open spreadsheets.
		if name[0] == '~' || name[0] == '.' {
			return nil
		}
		id := exptIDPattern.FindString(name)
		if id == "" {
			return nil
		}
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("duplicate experiment id %s in %s and %s", id, prev, name)
		}
		seen[id] = name
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("experimental folder %s does not exist", dir)
		}
		return nil, err
	}
	return paths, nil
}

func findSequenceSummaries(dir string) ([]string, error) {
	var paths []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		for _, pattern := range sequenceFilePatterns {
			if pattern.MatchString(filepath.Base(path)) {
				paths = append(paths, path)
				return nil
			}
		}
		return nil
	})
	return paths, err
}

// experimentType maps an experiment id prefix to the assay it denotes.
func experimentType(id string) any {
	switch {
	case strings.HasPrefix(id, "SW"):
		return "sWGA"
	case strings.HasPrefix(id, "PC"):
		return "PCR"
	case strings.HasPrefix(id, "SL"):
		return "seqlib"
	}
	return nil
}

// exptSourceField finds the raw column the sequence schema uses for the
// experiment id, so discovered files can be tagged with it.
func exptSourceField(s *schema.Schema) string {
	if spec := s.Resolve("EXPT_ID"); spec != nil {
		return spec.SourceField
	}
	return ""
}

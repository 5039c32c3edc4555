package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"feeledger/internal/audit"
	ledgerapp "feeledger/internal/ledger/application"
	ledger "feeledger/internal/ledger/domain"
	receipts "feeledger/internal/receipts/domain"
	"feeledger/internal/unitofwork"
)

const dateLayout = "2006-01-02"

// Commands is the command tree.
type Commands struct {
	Migrate   MigrateCmd   `cmd:"" help:"Apply SQL migrations."`
	Balance   BalanceCmd   `cmd:"" help:"Show a student's current balance for a session."`
	Statement StatementCmd `cmd:"" help:"Print a student's session timeline."`
	Dues      DuesCmd      `cmd:"" help:"Show expected session dues for a student."`
	Recompute RecomputeCmd `cmd:"" help:"Replay a student's entries and repair cached balances."`
	Receipt   ReceiptCmd   `cmd:"" help:"Receipt operations."`
	Rollover  RolloverCmd  `cmd:"" help:"Session rollover operations."`
	Transport TransportCmd `cmd:"" help:"Transport enrollment operations."`
}

// MigrateCmd applies migrations in file name order.
type MigrateCmd struct {
	Dir string `help:"Migrations directory." default:"migrations" type:"existingdir"`
}

func (cmd *MigrateCmd) Run(a *app) error {
	files, err := filepath.Glob(filepath.Join(cmd.Dir, "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)
	ctx := context.Background()
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if _, err := a.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("migrate %s: %w", filepath.Base(path), err)
		}
		a.logger.Printf("migration applied: %s", filepath.Base(path))
	}
	return nil
}

// BalanceCmd prints the current balance.
type BalanceCmd struct {
	Student string `help:"Student id." required:""`
	Session string `help:"Session id." required:""`
}

func (cmd *BalanceCmd) Run(a *app) error {
	var balance decimal.Decimal
	err := a.uow.View(context.Background(), func(ctx context.Context, repos unitofwork.Repositories) error {
		store, err := ledgerapp.NewStore(repos.Entries, nil)
		if err != nil {
			return err
		}
		balance, err = store.CurrentBalance(ctx, cmd.Student, cmd.Session)
		return err
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "%s %s balance=%s\n", cmd.Student, cmd.Session, balance.StringFixed(2))
	return nil
}

// StatementCmd prints the session timeline.
type StatementCmd struct {
	Student string `help:"Student id." required:""`
	Session string `help:"Session id." required:""`
}

func (cmd *StatementCmd) Run(a *app) error {
	var entries []ledger.Entry
	err := a.uow.View(context.Background(), func(ctx context.Context, repos unitofwork.Repositories) error {
		store, err := ledgerapp.NewStore(repos.Entries, nil)
		if err != nil {
			return err
		}
		entries, err = store.Statement(ctx, cmd.Student, cmd.Session)
		return err
	})
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATE\tPARTICULARS\tDEBIT\tCREDIT\tBALANCE\tREF\tREVERSED")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
			e.EntryDate.Format(dateLayout), e.Particulars,
			e.DebitAmount.StringFixed(2), e.CreditAmount.StringFixed(2), e.Balance.StringFixed(2),
			e.ReferenceType, e.IsReversed)
	}
	return w.Flush()
}

// DuesCmd prints the dues breakdown.
type DuesCmd struct {
	Student string `help:"Student id." required:""`
	Session string `help:"Session id." required:""`
}

func (cmd *DuesCmd) Run(a *app) error {
	ctx := context.Background()
	session, err := a.session(ctx, cmd.Session)
	if err != nil {
		return err
	}
	b, err := a.calculator.Breakdown(ctx, cmd.Student, session)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "tuition=%s registration=%s admission=%s transport=%s estimated=%t\n",
		b.Tuition.StringFixed(2), b.Registration.StringFixed(2), b.Admission.StringFixed(2),
		b.Transport.StringFixed(2), b.TransportEstimated)
	_, _ = fmt.Fprintf(a.out, "charges=%s paid=%s outstanding=%s\n",
		b.TotalCharges.StringFixed(2), b.Paid.StringFixed(2), b.Outstanding.StringFixed(2))
	for _, missing := range b.MissingRules {
		_, _ = fmt.Fprintf(a.out, "missing rule: %s %s\n", b.ClassName, missing)
	}
	return nil
}

// RecomputeCmd repairs cached balances.
type RecomputeCmd struct {
	Student string `help:"Student id." required:""`
}

func (cmd *RecomputeCmd) Run(a *app) error {
	ctx := context.Background()
	var result ledgerapp.RecomputeResult
	err := a.uow.Do(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		store, err := ledgerapp.NewStore(repos.Entries, nil)
		if err != nil {
			return err
		}
		result, err = store.Recompute(ctx, cmd.Student)
		return err
	})
	if err != nil {
		return err
	}
	a.record(ctx, audit.Entry{
		Action:       audit.ActionLedgerRecompute,
		ResourceType: "student",
		ResourceID:   cmd.Student,
		StudentID:    cmd.Student,
		Metadata:     audit.Metadata(result),
	})
	_, _ = fmt.Fprintf(a.out, "scanned=%d rewritten=%d carried=%d\n", result.Scanned, result.Rewritten, result.Carried)
	return nil
}

// ReceiptCmd groups receipt operations.
type ReceiptCmd struct {
	Create  ReceiptCreateCmd  `cmd:"" help:"Record a receipt."`
	Edit    ReceiptEditCmd    `cmd:"" help:"Edit an active receipt."`
	Cancel  ReceiptCancelCmd  `cmd:"" help:"Cancel a receipt."`
	Suggest ReceiptSuggestCmd `cmd:"" help:"Suggest the next receipt number."`
}

// ReceiptCreateCmd records a receipt.
type ReceiptCreateCmd struct {
	Number   string          `help:"Receipt number." required:""`
	Student  string          `help:"Student id." required:""`
	Session  string          `help:"Session id." required:""`
	Date     time.Time       `help:"Receipt date (YYYY-MM-DD)." format:"2006-01-02" required:""`
	Net      decimal.Decimal `help:"Amount received." required:""`
	Discount decimal.Decimal `help:"Discount granted."`
	Mode     string          `help:"Payment mode." default:"CASH" enum:"CASH,CHEQUE,ONLINE,UPI,BANK_TRANSFER"`
	Remarks  string          `help:"Remarks."`
}

func (cmd *ReceiptCreateCmd) Run(a *app) error {
	ctx := context.Background()
	receipt, err := a.receipts.Create(ctx, receipts.Receipt{
		ReceiptNumber:  cmd.Number,
		StudentID:      cmd.Student,
		SessionID:      cmd.Session,
		ReceiptDate:    cmd.Date,
		NetAmount:      cmd.Net,
		DiscountAmount: cmd.Discount,
		PaymentMode:    receipts.PaymentMode(cmd.Mode),
		Remarks:        cmd.Remarks,
	}, nil)
	if err != nil {
		return err
	}
	a.record(ctx, audit.Entry{
		Action:       audit.ActionReceiptCreate,
		ResourceType: "receipt",
		ResourceID:   receipt.ID,
		StudentID:    receipt.StudentID,
		SessionID:    receipt.SessionID,
		Metadata: audit.Metadata(map[string]string{
			"receipt_number": receipt.ReceiptNumber,
			"net_amount":     receipt.NetAmount.StringFixed(2),
			"discount":       receipt.DiscountAmount.StringFixed(2),
		}),
	})
	_, _ = fmt.Fprintf(a.out, "receipt %s created id=%s\n", receipt.ReceiptNumber, receipt.ID)
	return nil
}

// ReceiptEditCmd edits a receipt. Unset flags keep the stored values.
type ReceiptEditCmd struct {
	ID       string `arg:"" help:"Receipt id."`
	Number   string `help:"New receipt number."`
	Date     string `help:"New receipt date (YYYY-MM-DD)."`
	Net      string `help:"New amount received."`
	Discount string `help:"New discount."`
	Mode     string `help:"New payment mode (CASH, CHEQUE, ONLINE, UPI, BANK_TRANSFER)."`
	Remarks  string `help:"New remarks."`
}

func (cmd *ReceiptEditCmd) Run(a *app) error {
	ctx := context.Background()
	current, items, err := a.receipts.Get(ctx, cmd.ID)
	if err != nil {
		return err
	}
	receipt := *current
	if cmd.Number != "" {
		receipt.ReceiptNumber = cmd.Number
	}
	if cmd.Date != "" {
		if receipt.ReceiptDate, err = time.Parse(dateLayout, cmd.Date); err != nil {
			return fmt.Errorf("parse date: %w", err)
		}
	}
	if cmd.Net != "" {
		if receipt.NetAmount, err = decimal.NewFromString(cmd.Net); err != nil {
			return fmt.Errorf("parse net: %w", err)
		}
	}
	if cmd.Discount != "" {
		if receipt.DiscountAmount, err = decimal.NewFromString(cmd.Discount); err != nil {
			return fmt.Errorf("parse discount: %w", err)
		}
	}
	if cmd.Mode != "" {
		receipt.PaymentMode = receipts.PaymentMode(cmd.Mode)
	}
	if cmd.Remarks != "" {
		receipt.Remarks = cmd.Remarks
	}

	result, err := a.receipts.Edit(ctx, receipt, items)
	if err != nil {
		return err
	}
	a.record(ctx, audit.Entry{
		Action:       audit.ActionReceiptEdit,
		ResourceType: "receipt",
		ResourceID:   receipt.ID,
		StudentID:    receipt.StudentID,
		SessionID:    receipt.SessionID,
		Metadata: audit.Metadata(map[string]any{
			"previous_net":      result.PreviousNetAmount.StringFixed(2),
			"net":               receipt.NetAmount.StringFixed(2),
			"previous_discount": result.PreviousDiscount.StringFixed(2),
			"discount":          receipt.DiscountAmount.StringFixed(2),
			"recomputed":        result.Recomputed,
		}),
	})
	_, _ = fmt.Fprintf(a.out, "receipt %s edited recomputed=%t\n", receipt.ReceiptNumber, result.Recomputed)
	return nil
}

// ReceiptCancelCmd cancels a receipt.
type ReceiptCancelCmd struct {
	ID     string `arg:"" help:"Receipt id."`
	Reason string `help:"Cancellation reason." required:""`
}

func (cmd *ReceiptCancelCmd) Run(a *app) error {
	ctx := context.Background()
	receipt, err := a.receipts.Cancel(ctx, cmd.ID, cmd.Reason)
	if err != nil {
		return err
	}
	a.record(ctx, audit.Entry{
		Action:       audit.ActionReceiptCancel,
		ResourceType: "receipt",
		ResourceID:   receipt.ID,
		StudentID:    receipt.StudentID,
		SessionID:    receipt.SessionID,
		Metadata: audit.Metadata(map[string]string{
			"receipt_number": receipt.ReceiptNumber,
			"reason":         cmd.Reason,
		}),
	})
	_, _ = fmt.Fprintf(a.out, "receipt %s cancelled\n", receipt.ReceiptNumber)
	return nil
}

// ReceiptSuggestCmd prints the next receipt number hint.
type ReceiptSuggestCmd struct{}

func (cmd *ReceiptSuggestCmd) Run(a *app) error {
	next, err := a.receipts.SuggestNextReceiptNumber(context.Background())
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.out, next)
	return nil
}

// RolloverCmd groups session transition operations.
type RolloverCmd struct {
	CopyFees      CopyFeesCmd      `cmd:"" help:"Copy fee structures into a new session."`
	CarryForward  CarryForwardCmd  `cmd:"" help:"Carry outstanding balances into a new session."`
	ChargeFees    ChargeFeesCmd    `cmd:"" help:"Charge session fees to students."`
	AdjustOpening AdjustOpeningCmd `cmd:"" help:"Set a student's opening balance."`
}

// CopyFeesCmd copies fee structures.
type CopyFeesCmd struct {
	From   string `help:"Source session id." required:""`
	To     string `help:"Target session id." required:""`
	DryRun bool   `help:"Report without committing."`
}

func (cmd *CopyFeesCmd) Run(a *app) error {
	ctx := context.Background()
	operator := a.operator
	if cmd.DryRun {
		operator = operator.DryRun()
	}
	result, err := operator.CopyFeeStructures(ctx, cmd.From, cmd.To)
	if err != nil {
		return err
	}
	if !cmd.DryRun && !result.Skipped {
		a.record(ctx, audit.Entry{
			Action:       audit.ActionCopyFees,
			ResourceType: "session",
			ResourceID:   cmd.To,
			SessionID:    cmd.To,
			Metadata:     audit.Metadata(map[string]any{"source": cmd.From, "copied": result.Copied}),
		})
	}
	_, _ = fmt.Fprintf(a.out, "copied=%d skipped=%t\n", result.Copied, result.Skipped)
	return nil
}

// CarryForwardCmd carries balances forward.
type CarryForwardCmd struct {
	Session string `help:"New session id." required:""`
	DryRun  bool   `help:"Report without committing."`
}

func (cmd *CarryForwardCmd) Run(a *app) error {
	ctx := context.Background()
	session, err := a.session(ctx, cmd.Session)
	if err != nil {
		return err
	}
	operator := a.operator
	if cmd.DryRun {
		operator = operator.DryRun()
	}
	result, err := operator.CarryForwardDues(ctx, session.ID, session.StartsOn)
	if err != nil {
		return err
	}
	if !cmd.DryRun && result.Carried > 0 {
		a.record(ctx, audit.Entry{
			Action:       audit.ActionCarryForward,
			ResourceType: "session",
			ResourceID:   session.ID,
			SessionID:    session.ID,
			Metadata: audit.Metadata(map[string]any{
				"source":  result.SourceSessionID,
				"carried": result.Carried,
				"total":   result.Total.StringFixed(2),
			}),
		})
	}
	_, _ = fmt.Fprintf(a.out, "source=%s carried=%d skipped=%d total=%s\n",
		result.SourceSessionID, result.Carried, result.Skipped, result.Total.StringFixed(2))
	return nil
}

// ChargeFeesCmd charges session fees.
type ChargeFeesCmd struct {
	Session string `help:"Session id." required:""`
	Student string `help:"Charge only this student."`
	DryRun  bool   `help:"Report without committing."`
}

func (cmd *ChargeFeesCmd) Run(a *app) error {
	ctx := context.Background()
	session, err := a.session(ctx, cmd.Session)
	if err != nil {
		return err
	}
	operator := a.operator
	if cmd.DryRun {
		operator = operator.DryRun()
	}
	var charged, skipped int
	var total decimal.Decimal
	if cmd.Student != "" {
		result, err := operator.AddSessionFeesForStudent(ctx, cmd.Student, session)
		if err != nil {
			return err
		}
		charged, skipped, total = result.Charged, result.Skipped, result.Total
	} else {
		result, err := operator.AddSessionFeesForAllStudents(ctx, session)
		if err != nil {
			return err
		}
		charged, skipped, total = result.Charged, result.Skipped, result.Total
	}
	if !cmd.DryRun && charged > 0 {
		a.record(ctx, audit.Entry{
			Action:       audit.ActionChargeFees,
			ResourceType: "session",
			ResourceID:   session.ID,
			StudentID:    cmd.Student,
			SessionID:    session.ID,
			Metadata:     audit.Metadata(map[string]any{"charged": charged, "total": total.StringFixed(2)}),
		})
	}
	_, _ = fmt.Fprintf(a.out, "charged=%d skipped=%d total=%s\n", charged, skipped, total.StringFixed(2))
	return nil
}

// AdjustOpeningCmd sets an opening balance.
type AdjustOpeningCmd struct {
	Student string          `help:"Student id." required:""`
	Session string          `help:"Session id." required:""`
	Amount  decimal.Decimal `help:"New opening balance; zero removes it." required:""`
}

func (cmd *AdjustOpeningCmd) Run(a *app) error {
	ctx := context.Background()
	result, err := a.operator.AdjustOpeningBalance(ctx, cmd.Student, cmd.Session, cmd.Amount)
	if err != nil {
		return err
	}
	a.record(ctx, audit.Entry{
		Action:       audit.ActionAdjustOpening,
		ResourceType: "student",
		ResourceID:   cmd.Student,
		StudentID:    cmd.Student,
		SessionID:    cmd.Session,
		Metadata: audit.Metadata(map[string]any{
			"previous": result.Previous.StringFixed(2),
			"current":  result.Current.StringFixed(2),
			"removed":  result.Removed,
		}),
	})
	_, _ = fmt.Fprintf(a.out, "previous=%s current=%s removed=%t\n",
		result.Previous.StringFixed(2), result.Current.StringFixed(2), result.Removed)
	return nil
}

// TransportCmd groups enrollment operations.
type TransportCmd struct {
	Enroll TransportEnrollCmd `cmd:"" help:"Start or change a student's route."`
	Stop   TransportStopCmd   `cmd:"" help:"End a student's transport."`
}

// TransportEnrollCmd starts a route.
type TransportEnrollCmd struct {
	Student string    `help:"Student id." required:""`
	Route   string    `help:"Route id." required:""`
	From    time.Time `help:"Effective date (YYYY-MM-DD)." format:"2006-01-02" required:""`
}

func (cmd *TransportEnrollCmd) Run(a *app) error {
	enrollment, err := a.transport.Enroll(context.Background(), cmd.Student, cmd.Route, cmd.From)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "enrollment %s fee=%s\n", enrollment.ID, enrollment.MonthlyFeeAtEnrollment.StringFixed(2))
	return nil
}

// TransportStopCmd ends a route.
type TransportStopCmd struct {
	Student string    `help:"Student id." required:""`
	LastDay time.Time `help:"Last day of transport (YYYY-MM-DD)." format:"2006-01-02" required:""`
}

func (cmd *TransportStopCmd) Run(a *app) error {
	return a.transport.Stop(context.Background(), cmd.Student, cmd.LastDay)
}

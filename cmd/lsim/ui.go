package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"lifesim/internal/economy"
	"lifesim/internal/game"
	"lifesim/internal/governance"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

type businessesPayload struct {
	Businesses []game.BusinessView `json:"businesses"`
}

type proposalsPayload struct {
	Proposals []*governance.Proposal `json:"proposals"`
}

type reportsPayload struct {
	Reports []economy.Report `json:"reports"`
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("%s is required (stdin is not a terminal)", strings.ToLower(label))
	}
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptActorID(label string) (string, error) {
	for {
		id, err := promptRequired(label)
		if err != nil {
			return "", err
		}
		if err := game.ValidateActorID(id); err != nil {
			printWarn(err.Error())
			continue
		}
		return id, nil
	}
}

func renderDashboard(raw map[string]any) error {
	out, err := decodeInto[game.Dashboard](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== %s (%s) ==\n", strings.ToUpper(out.ActorID), strings.ToUpper(out.CountryID))
	fmt.Printf("%-22s %d\n", "Quarter", out.Turn)
	fmt.Printf("%-22s %s\n", "Cash", formatMoney(out.Cash))
	fmt.Printf("%-22s %s\n", "Base salary / quarter", formatMoney(out.QuarterlyBaseSalary))
	fmt.Printf("%-22s %s\n", "Projected net", colorizeMoney(out.Preview.NetProfit))
	if out.PendingProposals > 0 {
		warn.Printf("%-22s %d\n", "Pending proposals", out.PendingProposals)
	}
	if len(out.Businesses) == 0 {
		printInfo("No businesses yet. Open one with `lsim business open`.")
		fmt.Println()
		return nil
	}
	fmt.Println()
	printBusinessTable(out.Businesses)
	fmt.Println()
	return nil
}

func renderReport(raw map[string]any) error {
	r, err := decodeInto[economy.Report](raw)
	if err != nil {
		return err
	}
	printReport(r)
	return nil
}

func printReport(r economy.Report) {
	accent.Printf("\n== QUARTER %d REPORT (%s) ==\n", r.Turn, r.Archetype)
	fmt.Printf("%-20s %12s\n", "Salary", formatMoney(r.Income.Salary))
	fmt.Printf("%-20s %12s\n", "Business revenue", formatMoney(r.Income.BusinessRevenue))
	fmt.Printf("%-20s %12s\n", "Family income", formatMoney(r.Income.FamilyIncome))
	fmt.Printf("%-20s %12s\n", "Asset income", formatMoney(r.Income.AssetIncome))
	fmt.Printf("%-20s %12s\n", "Total income", formatMoney(r.Income.Total))
	fmt.Printf("%-20s %12s\n", "Living", formatMoney(r.Expenses.Living))
	fmt.Printf("%-20s %12s\n", "Business expenses", formatMoney(r.Expenses.Business))
	fmt.Printf("%-20s %12s\n", "Debt interest", formatMoney(r.Expenses.DebtInterest))
	fmt.Printf("%-20s %12s\n", "Total expenses", formatMoney(r.Expenses.Total))
	fmt.Printf("%-20s %12s\n", "Income tax", formatMoney(r.Taxes.Income))
	fmt.Printf("%-20s %12s\n", "Business tax", formatMoney(r.Taxes.Business))
	fmt.Printf("%-20s %12s\n", "Total taxes", formatMoney(r.Taxes.Total))
	fmt.Printf("%-20s %12s\n", "Taxable income", formatMoney(r.TaxableIncome))
	fmt.Printf("%-20s %12s\n", "Net profit", colorizeMoney(r.NetProfit))
	if r.Warning != "" {
		printWarn(r.Warning)
	}
	fmt.Println()
}

func renderReports(raw map[string]any) error {
	out, err := decodeInto[reportsPayload](raw)
	if err != nil {
		return err
	}
	if len(out.Reports) == 0 {
		printInfo("No settled quarters yet.")
		return nil
	}
	accent.Println("\n== REPORT HISTORY ==")
	fmt.Printf("%-8s %-16s %12s %12s %12s\n", "QUARTER", "ARCHETYPE", "INCOME", "EXPENSES", "NET")
	for _, r := range out.Reports {
		fmt.Printf("%-8d %-16s %12s %12s %12s\n",
			r.Turn,
			r.Archetype,
			formatMoney(r.Income.Total),
			formatMoney(r.Expenses.Total),
			colorizeMoney(r.NetProfit),
		)
	}
	fmt.Println()
	return nil
}

func renderBusinesses(raw map[string]any) error {
	out, err := decodeInto[businessesPayload](raw)
	if err != nil {
		return err
	}
	if len(out.Businesses) == 0 {
		printInfo("No businesses yet.")
		return nil
	}
	accent.Println("\n== BUSINESSES ==")
	printBusinessTable(out.Businesses)
	fmt.Println()
	return nil
}

func printBusinessTable(list []game.BusinessView) {
	fmt.Printf("%-36s %-20s %-8s %7s %6s %10s\n", "ID", "NAME", "STATE", "SHARE", "PRICE", "WALLET")
	for _, b := range list {
		fmt.Printf("%-36s %-20s %-8s %6.1f%% %6d %10s\n",
			b.ID,
			truncate(b.Name, 20),
			b.State,
			b.Share,
			b.Price,
			formatMoney(b.WalletBalance),
		)
	}
}

func renderBusiness(raw map[string]any) error {
	b, err := decodeInto[game.BusinessView](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== %s ==\n", strings.ToUpper(b.Name))
	fmt.Printf("%-16s %s\n", "ID", b.ID)
	fmt.Printf("%-16s %s (%s)\n", "Type / state", b.Type, b.State)
	fmt.Printf("%-16s %.1f%% (%s)\n", "Your share", b.Share, rightsLabel(b))
	fmt.Printf("%-16s %d (unit %.2f)\n", "Price level", b.Price, b.UnitPrice)
	fmt.Printf("%-16s %d\n", "Quantity", b.Quantity)
	fmt.Printf("%-16s %s\n", "Wallet", formatMoney(b.WalletBalance))
	fmt.Printf("%-16s %.2f / %.2f / %.2f\n", "Inc / exp / tax", b.Income, b.Expenses, b.Tax)
	if b.NetworkID != "" {
		branch := ""
		if b.IsMainBranch {
			branch = ", main branch"
		}
		fmt.Printf("%-16s %s (+%.0f%%%s)\n", "Network", b.NetworkID, b.NetworkBonus*100, branch)
	}
	if len(b.Partners) > 0 {
		accent.Println("Partners")
		for _, p := range b.Partners {
			fmt.Printf("  %-24s %6.1f%%\n", p.ActorID, p.Share)
		}
	}
	if len(b.Employees) > 0 {
		accent.Println("Employees")
		for _, e := range b.Employees {
			fmt.Printf("  %-36s %-16s L%-3d %10.2f\n", e.ID, truncate(e.Role, 16), e.Level, e.Salary)
		}
	}
	fmt.Println()
	return nil
}

func rightsLabel(b game.BusinessView) string {
	switch {
	case b.Rights.CanApplyDirectly:
		return "majority"
	case b.Rights.RequiresApproval:
		return "needs approval"
	default:
		return "minority"
	}
}

func renderChangeResult(raw map[string]any) error {
	out, err := decodeInto[game.ChangeResult](raw)
	if err != nil {
		return err
	}
	switch out.Outcome {
	case governance.OutcomeApplied:
		printSuccess("Change applied.")
	case governance.OutcomeProposed:
		printSuccess(fmt.Sprintf("Proposal %s sent for approval.", out.Proposal.ID))
		if out.Proposal.Escrow > 0 {
			printInfo(fmt.Sprintf("Escrowed %s until it is resolved.", formatMoney(out.Proposal.Escrow)))
		}
	case governance.OutcomeApproved:
		printSuccess(fmt.Sprintf("Proposal %s approved.", out.Proposal.ID))
	case governance.OutcomeRejected:
		printWarn(fmt.Sprintf("Proposal %s rejected.", out.Proposal.ID))
	case governance.OutcomeWithdrawing:
		printWarn(fmt.Sprintf("Withdrawal of %s requested; the escrow returns once your partner confirms.", out.Proposal.ID))
	default:
		printInfo("Nothing changed.")
	}
	fmt.Printf("%-8s %s\n", "Cash", formatMoney(out.Cash))
	return nil
}

func renderProposals(raw map[string]any) error {
	out, err := decodeInto[proposalsPayload](raw)
	if err != nil {
		return err
	}
	if len(out.Proposals) == 0 {
		printInfo("No proposals.")
		return nil
	}
	accent.Println("\n== PROPOSALS ==")
	fmt.Printf("%-36s %-18s %-12s %-12s %8s\n", "ID", "CHANGE", "FROM", "STATUS", "QUARTER")
	for _, p := range out.Proposals {
		kind := ""
		if p.Change != nil {
			kind = string(p.Change.Type())
		}
		status := string(p.Status)
		if p.Pending() {
			status = warn.Sprint(status)
		}
		fmt.Printf("%-36s %-18s %-12s %-12s %8d\n", p.ID, kind, truncate(p.InitiatorID, 12), status, p.CreatedTurn)
	}
	fmt.Println()
	return nil
}

func renderClose(raw map[string]any) error {
	out, err := decodeInto[game.CloseResult](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Business %s closed. Your payout: %s", out.BusinessID, formatMoney(out.Payout)))
	return nil
}

func renderQuarter(raw map[string]any) error {
	out, err := decodeInto[game.QuarterSummary](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Quarter advanced for %d players.", out.Players))
	if out.Failed > 0 {
		printError(fmt.Sprintf("%d settlements failed; see server logs.", out.Failed))
	}
	fmt.Printf("%-12s %s\n", "Total net", colorizeMoney(out.NetProfit))
	return nil
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func colorizeMoney(v int64) string {
	text := formatMoney(v)
	switch {
	case v > 0:
		return success.Sprint("+" + text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func formatMoney(v int64) string {
	if v < 0 {
		return "-" + comma(-v)
	}
	return comma(v)
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func parseMoney(s string) (int64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return int64(math.Round(v)), nil
}

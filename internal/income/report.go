package income

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ApprovalReadiness is a general, non-advisory view of how lenders tend to
// read an income level.
type ApprovalReadiness struct {
	Overall       string `json:"overall"`
	CreditCards   string `json:"creditCards"`
	PersonalLoans string `json:"personalLoans"`
	AutoLoans     string `json:"autoLoans"`
	Mortgage      string `json:"mortgage"`
}

// ThirtyDayPlan holds three actions per week.
type ThirtyDayPlan struct {
	Week1 []string `json:"week1"`
	Week2 []string `json:"week2"`
	Week3 []string `json:"week3"`
	Week4 []string `json:"week4"`
}

// Tip is an expanded explanation with follow-up actions.
type Tip struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ActionItems []string `json:"actionItems"`
}

// ProSections is the paid content added on top of the base report.
type ProSections struct {
	StabilityAssessment
	ApprovalReadiness ApprovalReadiness `json:"approvalReadiness"`
	LeverageMoves     []string          `json:"leverageMoves"`
	ThirtyDayPlan     ThirtyDayPlan     `json:"thirtyDayPlan"`
	ExpandedTips      []Tip             `json:"expandedTips"`
}

type incomeBracket int

const (
	bracketEarly incomeBracket = iota
	bracketMiddle
	bracketHigh
)

var (
	bracketMiddleFloor = decimal.NewFromInt(50000)
	bracketHighFloor   = decimal.NewFromInt(100000)
)

func bracketFor(annual decimal.Decimal) incomeBracket {
	switch {
	case annual.LessThan(bracketMiddleFloor):
		return bracketEarly
	case annual.LessThan(bracketHighFloor):
		return bracketMiddle
	default:
		return bracketHigh
	}
}

// BuildProSections derives every pro section from an annual income figure.
// daysWorked may be zero when the track record is unknown.
func BuildProSections(annual decimal.Decimal, daysWorked int) ProSections {
	bracket := bracketFor(annual)
	return ProSections{
		StabilityAssessment: AssessStability(annual, daysWorked),
		ApprovalReadiness:   assessApprovalReadiness(annual),
		LeverageMoves:       append([]string(nil), leverageMoves[bracket]...),
		ThirtyDayPlan:       thirtyDayPlans[bracket],
		ExpandedTips:        expandedTips(bracket),
	}
}

func assessApprovalReadiness(annual decimal.Decimal) ApprovalReadiness {
	monthly := annual.Div(decimal.NewFromInt(12))
	atLeast := func(d decimal.Decimal, floor int64) bool {
		return d.GreaterThanOrEqual(decimal.NewFromInt(floor))
	}

	var r ApprovalReadiness
	switch {
	case atLeast(annual, 100000):
		r.Overall = "Your income level is generally viewed favorably by most lenders. Strong candidates typically see more competitive rates."
	case atLeast(annual, 60000):
		r.Overall = "Your income is in a range that typically meets requirements for most standard financial products."
	case atLeast(annual, 40000):
		r.Overall = "Your income can support many financial products. Building savings and credit history will strengthen applications."
	default:
		r.Overall = "Focus on building income stability and emergency savings. Consider secured credit options to build credit history."
	}

	switch {
	case atLeast(annual, 75000):
		r.CreditCards = "Generally well-positioned for premium credit cards with travel rewards and higher limits."
	case atLeast(annual, 40000):
		r.CreditCards = "Good fit for mid-tier rewards cards. Consider cards with no annual fee and cash back benefits."
	default:
		r.CreditCards = "Start with secured cards or student cards to build credit history. Graduate to rewards cards over time."
	}

	switch {
	case atLeast(monthly, 5000):
		r.PersonalLoans = "Income typically supports personal loans up to 2-3x monthly income, depending on existing debts."
	case atLeast(monthly, 3000):
		r.PersonalLoans = "Personal loans are accessible. Keep monthly payments under 10% of gross income for comfort."
	default:
		r.PersonalLoans = "Smaller personal loans may be available. Consider credit unions for better rates on smaller amounts."
	}

	if atLeast(monthly, 4000) {
		r.AutoLoans = fmt.Sprintf("Following the 12%% rule, comfortable monthly auto payment is around $%d. Include insurance and maintenance in your budget.",
			wholeUnits(monthly.Mul(autoPaymentRatio)))
	} else {
		r.AutoLoans = "Budget-friendly options recommended. Keep total car costs under 15% of income including insurance."
	}

	maxHousing := wholeUnits(monthly.Mul(decimal.RequireFromString("0.28")))
	switch {
	case atLeast(annual, 80000):
		r.Mortgage = fmt.Sprintf("Following the 28%% rule, max housing payment around $%d/month. 20%% down payment avoids PMI.", maxHousing)
	case atLeast(annual, 50000):
		r.Mortgage = fmt.Sprintf("First-time buyer programs may help. Look into FHA loans with 3.5%% down. Housing budget: ~$%d/month.", maxHousing)
	default:
		r.Mortgage = "Building savings and credit history is the priority. Consider assistance programs when ready to buy."
	}
	return r
}

var leverageMoves = map[incomeBracket][]string{
	bracketEarly: {
		"Upskill with free certifications: Google Career Certificates, Coursera, and LinkedIn Learning can boost your earning potential by 20-40%",
		"Start a side income stream: Freelancing, tutoring, or gig work can add $500-2,000/month",
		"Negotiate your salary: 78% of employers expect negotiation. Research your market rate and ask for a meeting",
	},
	bracketMiddle: {
		"Max out employer 401(k) match immediately: This is a 50-100% instant return on your contribution",
		"Open a Roth IRA and contribute $7,000/year: Tax-free growth compounds significantly over time",
		"Build emergency fund to 3-6 months expenses: This creates financial security and negotiation leverage",
	},
	bracketHigh: {
		"Max all tax-advantaged accounts: 401(k) ($23,000), IRA ($7,000), HSA ($4,150/$8,300) reduces taxable income",
		"Consider real estate investment: Rental income + depreciation provides cash flow and tax benefits",
		"Explore backdoor Roth conversions: Circumvent income limits to access tax-free growth",
	},
}

var thirtyDayPlans = map[incomeBracket]ThirtyDayPlan{
	bracketEarly: {
		Week1: []string{
			"Audit all subscriptions - cancel anything unused weekly",
			"Set up automatic savings transfer of $50/paycheck (adjust based on your budget)",
			"List your top 3 marketable skills",
		},
		Week2: []string{
			"Apply for one free certification (Google, HubSpot, LinkedIn)",
			"Research salary benchmarks for your role on Glassdoor",
			"Calculate your true hourly rate including commute time",
		},
		Week3: []string{
			"Draft a salary negotiation script or job search plan",
			"Open a high-yield savings account (4-5% APY) if you don't have one",
			"Identify one potential side income that uses your existing skills",
		},
		Week4: []string{
			"Schedule a career conversation with your manager or apply to 3 jobs",
			"Set specific income goal for next quarter",
			"Review and optimize your budget using the 50/30/20 framework",
		},
	},
	bracketMiddle: {
		Week1: []string{
			"Review your 401(k) contribution - ensure you're maxing employer match",
			"Check that beneficiaries are updated on all accounts",
			"Audit your insurance coverage (life, disability, umbrella)",
		},
		Week2: []string{
			"Open or fund Roth IRA - set up automatic monthly contributions",
			"Research HSA-eligible health plans for next enrollment",
			"Review your asset allocation - ensure age-appropriate diversification",
		},
		Week3: []string{
			"Calculate your net worth (assets minus liabilities)",
			"Review all investment fees - switch to low-cost index funds if needed",
			"Create or update your emergency fund goal (3-6 months expenses)",
		},
		Week4: []string{
			"Schedule annual compensation review conversation",
			"Set up automatic increases to retirement contributions with raises",
			"Create a 12-month financial roadmap with specific milestones",
		},
	},
	bracketHigh: {
		Week1: []string{
			"Verify you're maxing all tax-advantaged accounts ($23k 401k + $7k IRA)",
			"Review mega backdoor Roth eligibility with your 401(k) plan",
			"Audit your portfolio for tax-loss harvesting opportunities",
		},
		Week2: []string{
			"Schedule meeting with a fee-only fiduciary financial advisor",
			"Research real estate syndications or REITs for diversification",
			"Review estate planning documents (will, trust, beneficiaries)",
		},
		Week3: []string{
			"Evaluate need for umbrella insurance given asset level",
			"Consider charitable giving strategy: donor-advised fund or appreciated stock",
			"Review corporate benefits for any unused perks (legal, financial planning)",
		},
		Week4: []string{
			"Set up quarterly net worth tracking",
			"Create or update legacy/estate plan",
			"Schedule annual tax planning meeting with CPA",
		},
	},
}

var bracketTips = map[incomeBracket][]Tip{
	bracketEarly: {
		{
			Title:       "The Power of Compound Income",
			Description: "Focus on increasing income rather than just cutting expenses. A $5,000/year raise compounds throughout your career.",
			ActionItems: []string{
				"Identify your highest-value skill and improve it",
				"Consider certifications that directly lead to higher pay",
				"Track your accomplishments for performance reviews",
			},
		},
		{
			Title:       "Emergency Fund Strategy",
			Description: "Even small emergency funds prevent debt spirals. Start with $1,000, then build to one month's expenses.",
			ActionItems: []string{
				"Open a separate high-yield savings account",
				"Automate a small weekly transfer ($20-50)",
				"Use this fund ONLY for true emergencies",
			},
		},
	},
	bracketMiddle: {
		{
			Title:       "Tax Efficiency Fundamentals",
			Description: "Every dollar saved in taxes is a dollar earned. Pre-tax contributions reduce your tax bracket.",
			ActionItems: []string{
				"Max employer 401(k) match (typically 3-6%)",
				"Use FSA for medical/dependent care expenses",
				"Consider pre-tax commuter benefits if available",
			},
		},
		{
			Title:       "Investment Simplicity",
			Description: "Low-cost index funds beat 90% of actively managed funds over 20 years. Keep investing simple.",
			ActionItems: []string{
				"Use target-date funds for hands-off investing",
				"Keep investment fees under 0.20%",
				"Avoid timing the market - contribute consistently",
			},
		},
	},
	bracketHigh: {
		{
			Title:       "Tax Planning vs Tax Preparation",
			Description: "At your income level, proactive tax planning saves more than reactive tax filing. Plan quarterly, not annually.",
			ActionItems: []string{
				"Meet with CPA in Q4 to plan year-end moves",
				"Bunch deductions in alternating years if beneficial",
				"Consider Qualified Business Income deductions if applicable",
			},
		},
		{
			Title:       "Wealth Preservation",
			Description: "As wealth grows, protection becomes as important as growth. Diversification and insurance are key.",
			ActionItems: []string{
				"Ensure umbrella insurance covers your net worth",
				"Diversify across asset classes and geographies",
				"Consider asset protection strategies (trusts, LLCs)",
			},
		},
	},
}

var universalTip = Tip{
	Title:       "The Psychology of Money",
	Description: "Financial success is 20% knowledge and 80% behavior. Automate good decisions to remove willpower from the equation.",
	ActionItems: []string{
		"Automate savings and investments on payday",
		"Use separate accounts for different goals",
		"Review spending monthly, not daily (avoid anxiety)",
	},
}

func expandedTips(bracket incomeBracket) []Tip {
	tips := make([]Tip, 0, 3)
	tips = append(tips, bracketTips[bracket]...)
	return append(tips, universalTip)
}

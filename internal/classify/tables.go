package classify

// subscriptionProviders are merchants whose presence alone implies a
// subscription entity.
var subscriptionProviders = []string{
	"netflix", "prime", "hotstar", "spotify", "youtube", "disney",
	"canva", "notion", "dropbox", "google one", "icloud", "apple",
}

// loanSignals indicate recurring installment language.
var loanSignals = []string{
	"emi", "installment", "instalment", "loan", "principal", "interest",
	"repayment",
}

// autoDebitSignals indicate an automatic payment arrangement.
var autoDebitSignals = []string{
	"auto-debit", "auto debit", "autopay", "automatic payment",
	"automatically charged", "automatically renewed", "recurring payment",
}

// merchantCategories maps merchant keywords to categories. First match
// wins; matching is case-insensitive substring.
var merchantCategories = []struct {
	keyword  string
	category string
}{
	// Entertainment subscriptions
	{"netflix", "entertainment"},
	{"prime", "entertainment"},
	{"hotstar", "entertainment"},
	{"spotify", "entertainment"},
	{"youtube", "entertainment"},
	{"disney", "entertainment"},

	// Productivity and storage
	{"notion", "productivity"},
	{"canva", "productivity"},
	{"dropbox", "cloud_storage"},
	{"google one", "cloud_storage"},
	{"icloud", "cloud_storage"},

	// Utilities
	{"bses", "utility"},
	{"tata power", "utility"},
	{"airtel", "utility"},
	{"jio", "utility"},
	{"vodafone", "utility"},
	{"bharti", "utility"},
	{"electricity", "utility"},
	{"broadband", "utility"},

	// Banking and cards
	{"hdfc", "credit_card"},
	{"icici", "credit_card"},
	{"sbi card", "credit_card"},
	{"axis", "credit_card"},
	{"amex", "credit_card"},
	{"mastercard", "credit_card"},
	{"visa", "credit_card"},

	// Loans
	{"home loan", "home_loan"},
	{"housing finance", "home_loan"},
	{"personal loan", "personal_loan"},
	{"education loan", "education_loan"},
	{"car loan", "vehicle_loan"},
	{"vehicle loan", "vehicle_loan"},
	{"bajaj finserv", "bnpl"},
	{"simpl", "bnpl"},
	{"lazypay", "bnpl"},

	// Municipal and medical
	{"municipal", "municipal"},
	{"property tax", "municipal"},
	{"hospital", "medical"},
	{"pharmacy", "medical"},
}

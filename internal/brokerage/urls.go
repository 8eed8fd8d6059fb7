package brokerage

// Endpoint paths, relative to the client base URL.
const (
	pathToken           = "/oauth2/token/"
	pathUserMachine     = "/pathfinder/user_machine/"
	pathAccounts        = "/accounts/"
	pathQuotes          = "/quotes/"
	pathInstruments     = "/instruments/"
	pathPositions       = "/positions/"
	pathOrders          = "/orders/"
	pathChallengeFmt    = "/challenge/%s/respond/"
	pathPromptStatusFmt = "/push/%s/get_prompts_status/"
	pathInquiriesFmt    = "/pathfinder/inquiries/%s/user_view/"
	pathOrderInfoFmt    = "/orders/%s/"
	pathOrderCancelFmt  = "/orders/%s/cancel/"
)

package usercontext

// KeyAccountContext is the Locals key holding the request's AccountContext.
const KeyAccountContext = "ACCOUNT_CONTEXT"

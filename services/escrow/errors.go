package escrow

import "crowdfund-escrow/pkg/errutil"

func validation(reason, msg string) errutil.BaseError {
	return errutil.BaseError{Code: errutil.StatusValidationFailed, Reason: reason, Message: msg}
}

func forbidden(reason, msg string) errutil.BaseError {
	return errutil.BaseError{Code: errutil.StatusForbidden, Reason: reason, Message: msg}
}

func state(reason, msg string) errutil.BaseError {
	return errutil.BaseError{Code: errutil.StatusUnprocessableEntity, Reason: reason, Message: msg}
}

func tooEarly(reason, msg string) errutil.BaseError {
	return errutil.BaseError{Code: errutil.StatusTooEarly, Reason: reason, Message: msg}
}

func expired(reason, msg string) errutil.BaseError {
	return errutil.BaseError{Code: errutil.StatusExpired, Reason: reason, Message: msg}
}

func notFound(reason, msg string) errutil.BaseError {
	return errutil.BaseError{Code: errutil.StatusNotFound, Reason: reason, Message: msg}
}

// Validation errors.
var (
	ErrInvalidMetadata            = validation("INVALID_METADATA", "content hash must be 32 non-zero bytes in hex")
	ErrInvalidGoal                = validation("INVALID_GOAL", "goal is below the minimum")
	ErrInvalidDuration            = validation("INVALID_DURATION", "funding duration must be between 7 and 90 days")
	ErrInvalidMilestoneCount      = validation("INVALID_MILESTONE_COUNT", "a campaign needs 3 to 10 milestones")
	ErrInvalidPercentage          = validation("INVALID_PERCENTAGE", "every milestone must release a positive share")
	ErrPercentageMustSum100       = validation("PERCENTAGE_MUST_SUM_100", "milestone shares must sum to 10000 basis points")
	ErrMilestonesNotChronological = validation("MILESTONES_NOT_CHRONOLOGICAL", "milestone due dates must be strictly increasing and after the funding deadline")
	ErrMilestoneTooLate           = validation("MILESTONE_TOO_LATE", "the final milestone is due more than 365 days after the funding deadline")
	ErrGoalExceedsLimit           = validation("GOAL_EXCEEDS_LIMIT", "goal exceeds the creator's reputation limit")
	ErrUnsupportedAsset           = validation("UNSUPPORTED_ASSET", "payment asset is not accepted")
	ErrInvalidAmount              = validation("INVALID_AMOUNT", "amount must be positive")
	ErrInvalidProof               = validation("INVALID_PROOF", "proof hash must be 32 non-zero bytes in hex")
	ErrInvalidEvidence            = validation("INVALID_EVIDENCE", "evidence hash must be 32 non-zero bytes in hex")
	ErrInvalidReleasePercentage   = validation("INVALID_RELEASE_PERCENTAGE", "release must be 0, 5000 or 10000 basis points")
	ErrInvalidAddress             = validation("INVALID_ADDRESS", "address is required")
	ErrContentNotFound            = validation("CONTENT_NOT_FOUND", "content hash is not in the content store")
)

// Authorization errors.
var (
	ErrMissingCaller           = errutil.BaseError{Code: errutil.StatusUnauthorized, Reason: "MISSING_CALLER", Message: "caller identity is required"}
	ErrNotCreator              = forbidden("NOT_CREATOR", "only the campaign creator may do this")
	ErrNotBacker               = forbidden("NOT_BACKER", "caller has no contribution in this campaign")
	ErrNotArbitrator           = forbidden("NOT_ARBITRATOR", "only an arbitrator may resolve disputes")
	ErrNotOwner                = forbidden("NOT_OWNER", "only the owner may change settings")
	ErrNotPendingOwner         = forbidden("NOT_PENDING_OWNER", "only the proposed owner may accept ownership")
	ErrCreatorCannotContribute = forbidden("CREATOR_CANNOT_CONTRIBUTE", "creators may not back their own campaign")
	ErrTooManyFailedCampaigns  = forbidden("TOO_MANY_FAILED_CAMPAIGNS", "creator has more failed than successful campaigns")
)

// State errors.
var (
	ErrCampaignNotFunding    = state("CAMPAIGN_NOT_FUNDING", "campaign is not in funding")
	ErrCampaignNotVesting    = state("CAMPAIGN_NOT_VESTING", "campaign is not in vesting")
	ErrCampaignNotFailed     = state("CAMPAIGN_NOT_FAILED", "campaign has not failed")
	ErrCampaignNotRefundable = state("CAMPAIGN_NOT_REFUNDABLE", "campaign is neither failed nor cancelled")
	ErrMilestoneNotPending   = state("MILESTONE_NOT_PENDING", "milestone is not pending")
	ErrMilestoneNotSubmitted = state("MILESTONE_NOT_SUBMITTED", "milestone is not open for voting")
	ErrMilestoneNotRejected  = state("MILESTONE_NOT_REJECTED", "milestone was not rejected")
	ErrMilestoneResolved     = state("MILESTONE_RESOLVED", "milestone is already resolved")
	ErrAlreadyVoted          = state("ALREADY_VOTED", "caller already voted on this milestone")
	ErrAlreadyRefunded       = state("ALREADY_REFUNDED", "contribution was already refunded")
	ErrDisputePending        = state("DISPUTE_PENDING", "a dispute is already pending for this campaign")
	ErrDisputeExists         = state("DISPUTE_EXISTS", "this milestone was already disputed")
	ErrDisputeNotPending     = state("DISPUTE_NOT_PENDING", "no pending dispute for this campaign")
	ErrPendingOwnerNotSet    = state("PENDING_OWNER_NOT_SET", "no ownership transfer is in progress")
	ErrReentrantCall         = errutil.BaseError{Code: errutil.StatusConflict, Reason: "REENTRANT_CALL", Message: "operation re-entered while another is in progress"}
)

// Temporal errors.
var (
	ErrFundingEnded          = expired("FUNDING_ENDED", "funding deadline has passed")
	ErrFundingNotEnded       = tooEarly("FUNDING_NOT_ENDED", "funding deadline has not passed")
	ErrMilestoneOverdue      = expired("MILESTONE_OVERDUE", "milestone due date has passed")
	ErrMilestoneNotOverdue   = tooEarly("MILESTONE_NOT_OVERDUE", "milestone due date has not passed")
	ErrVoteLocked            = tooEarly("VOTE_LOCKED", "contributions must age 24 hours before voting")
	ErrVotingClosed          = expired("VOTING_CLOSED", "voting window has closed")
	ErrVotingNotClosed       = tooEarly("VOTING_NOT_CLOSED", "voting window is still open")
	ErrDisputeWindowClosed   = expired("DISPUTE_WINDOW_CLOSED", "disputes must be opened within 7 days of failure")
	ErrDisputeDeadlinePassed = expired("DISPUTE_DEADLINE_PASSED", "arbitration deadline has passed")
	ErrRefundsNotOpen        = tooEarly("REFUNDS_NOT_OPEN", "refunds open once the dispute path is settled")
	ErrRefundWindowClosed    = expired("REFUND_WINDOW_CLOSED", "refund window has closed")
)

// Resource errors.
var (
	ErrContributionTooSmall = errutil.BaseError{Code: errutil.StatusInsufficient, Reason: "CONTRIBUTION_TOO_SMALL", Message: "contribution is below the 10 USD minimum"}
)

// Lookup errors.
var (
	ErrCampaignNotFound     = notFound("CAMPAIGN_NOT_FOUND", "campaign not found")
	ErrContributionNotFound = notFound("CONTRIBUTION_NOT_FOUND", "contribution not found")
	ErrDisputeNotFound      = notFound("DISPUTE_NOT_FOUND", "dispute not found")
)

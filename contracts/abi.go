package contracts

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Only the functions and events this backend touches are listed.

const tipJarABI = `[
	{"inputs":[{"internalType":"string","name":"message","type":"string"},{"internalType":"address","name":"referrer","type":"address"}],"name":"tipETH","outputs":[],"stateMutability":"payable","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"string","name":"message","type":"string"},{"internalType":"address","name":"referrer","type":"address"}],"name":"tipUSDC","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"name":"creator","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"referralFeeBps","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"tipper","type":"address"},{"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"},{"indexed":false,"internalType":"address","name":"token","type":"address"},{"indexed":false,"internalType":"string","name":"message","type":"string"},{"indexed":true,"internalType":"address","name":"referrer","type":"address"},{"indexed":false,"internalType":"uint256","name":"referralAmount","type":"uint256"}],"name":"TipReceived","type":"event"}
]`

const membershipNFTABI = `[
	{"inputs":[{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"tierId","type":"uint256"},{"internalType":"uint256","name":"duration","type":"uint256"}],"name":"mint","outputs":[],"stateMutability":"payable","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"tierId","type":"uint256"}],"name":"getTierInfo","outputs":[{"internalType":"uint256","name":"price","type":"uint256"},{"internalType":"uint256","name":"maxDuration","type":"uint256"},{"internalType":"bool","name":"isActive","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"address","name":"owner","type":"address"},{"internalType":"uint256","name":"id","type":"uint256"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"creator","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"member","type":"address"},{"indexed":true,"internalType":"uint256","name":"tierId","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"duration","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"expiresAt","type":"uint256"}],"name":"MembershipMinted","type":"event"}
]`

const gatedContentRegistryABI = `[
	{"inputs":[{"internalType":"string","name":"contentHash","type":"string"},{"internalType":"uint256[]","name":"requiredTiers","type":"uint256[]"},{"internalType":"uint256","name":"priceInUSDC","type":"uint256"}],"name":"registerContent","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"address","name":"user","type":"address"},{"internalType":"address","name":"creator","type":"address"},{"internalType":"string","name":"contentHash","type":"string"}],"name":"hasAccess","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"address","name":"creator","type":"address"},{"internalType":"string","name":"contentHash","type":"string"}],"name":"getContentInfo","outputs":[{"internalType":"uint256[]","name":"requiredTiers","type":"uint256[]"},{"internalType":"uint256","name":"priceInUSDC","type":"uint256"},{"internalType":"bool","name":"isActive","type":"bool"}],"stateMutability":"view","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"creator","type":"address"},{"indexed":true,"internalType":"string","name":"contentHash","type":"string"},{"indexed":false,"internalType":"uint256[]","name":"requiredTiers","type":"uint256[]"},{"indexed":false,"internalType":"uint256","name":"priceInUSDC","type":"uint256"}],"name":"ContentRegistered","type":"event"}
]`

const fanRewardsABI = `[
	{"inputs":[{"internalType":"address","name":"fan","type":"address"},{"internalType":"uint256","name":"points","type":"uint256"},{"internalType":"string","name":"reason","type":"string"}],"name":"awardPoints","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"rewardId","type":"uint256"}],"name":"redeemReward","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"address","name":"fan","type":"address"}],"name":"getPointsBalance","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"uint256","name":"pointsCost","type":"uint256"},{"internalType":"string","name":"description","type":"string"},{"internalType":"uint256","name":"maxRedemptions","type":"uint256"}],"name":"createReward","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"fan","type":"address"},{"indexed":false,"internalType":"uint256","name":"points","type":"uint256"},{"indexed":false,"internalType":"string","name":"reason","type":"string"}],"name":"PointsAwarded","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"fan","type":"address"},{"indexed":true,"internalType":"uint256","name":"rewardId","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"pointsCost","type":"uint256"}],"name":"RewardRedeemed","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"internalType":"uint256","name":"rewardId","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"pointsCost","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"maxRedemptions","type":"uint256"}],"name":"RewardCreated","type":"event"}
]`

// Parsed ABIs, shared by every Gateway.
var (
	TipJarABI               = mustParseABI("TipJar", tipJarABI)
	MembershipNFTABI        = mustParseABI("MembershipNFT", membershipNFTABI)
	GatedContentRegistryABI = mustParseABI("GatedContentRegistry", gatedContentRegistryABI)
	FanRewardsABI           = mustParseABI("FanRewards", fanRewardsABI)
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("failed to parse %s ABI: %v", name, err))
	}
	return parsed
}

package parser

const (
	EventTransferQueued = "BridgeTransferQueued"
	EventDepositRequest = "BridgeDepositRequest"
	EventTransfer       = "BridgeTransfer"

	MethodTransfer     = "transfer"
	MethodDeposit      = "deposit"
	MethodSetLockdown  = "setLockdown"
	MethodGetLockdown  = "getLockdown"
	MethodGetThreshold = "getThreshold"
	MethodTxVotes      = "txvotes"
	MethodTxQueue      = "txqueue"
	MethodGetKeepers   = "getKeepers"
	MethodGetWatchdogs = "getWatchdogs"
	MethodGetWatchcats = "getWatchcats"
)

// Subset of the BitgreenBridge router abi used by the relayers
const routerAbiJson = `[
	{
		"type": "function",
		"name": "transfer",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "txid", "type": "bytes32"},
			{"name": "recipient", "type": "address"},
			{"name": "amount", "type": "uint256"},
			{"name": "erc20", "type": "address"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "deposit",
		"stateMutability": "payable",
		"inputs": [
			{"name": "destination", "type": "bytes32"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "setLockdown",
		"stateMutability": "nonpayable",
		"inputs": [],
		"outputs": []
	},
	{
		"type": "function",
		"name": "getLockdown",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "bool"}]
	},
	{
		"type": "function",
		"name": "getThreshold",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"type": "function",
		"name": "txvotes",
		"stateMutability": "view",
		"inputs": [
			{"name": "", "type": "bytes32"},
			{"name": "", "type": "address"}
		],
		"outputs": [{"name": "", "type": "bool"}]
	},
	{
		"type": "function",
		"name": "txqueue",
		"stateMutability": "view",
		"inputs": [
			{"name": "", "type": "bytes32"}
		],
		"outputs": [
			{"name": "recipient", "type": "address"},
			{"name": "amount", "type": "uint256"},
			{"name": "erc20", "type": "address"},
			{"name": "cnt", "type": "uint256"}
		]
	},
	{
		"type": "function",
		"name": "getKeepers",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "address[]"}]
	},
	{
		"type": "function",
		"name": "getWatchdogs",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "address[]"}]
	},
	{
		"type": "function",
		"name": "getWatchcats",
		"stateMutability": "view",
		"inputs": [],
		"outputs": [{"name": "", "type": "address[]"}]
	},
	{
		"type": "event",
		"name": "BridgeTransferQueued",
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "destination", "type": "bytes32"},
			{"indexed": true, "name": "amount", "type": "uint256"},
			{"indexed": true, "name": "sender", "type": "address"}
		]
	},
	{
		"type": "event",
		"name": "BridgeDepositRequest",
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "destination", "type": "bytes32"},
			{"indexed": true, "name": "amount", "type": "uint256"},
			{"indexed": true, "name": "sender", "type": "address"}
		]
	},
	{
		"type": "event",
		"name": "BridgeTransfer",
		"anonymous": false,
		"inputs": [
			{"indexed": false, "name": "txid", "type": "bytes32"},
			{"indexed": false, "name": "recipient", "type": "address"},
			{"indexed": false, "name": "amount", "type": "uint256"},
			{"indexed": false, "name": "erc20", "type": "address"},
			{"indexed": false, "name": "wdf", "type": "uint256"}
		]
	}
]`

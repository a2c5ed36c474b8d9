package config

// Default returns the built-in configuration.
func Default() *Config {
	deprecated := make(map[string]string, len(deprecatedIntrinsics))
	for k, v := range deprecatedIntrinsics {
		deprecated[k] = v
	}
	return &Config{
		VM: VMConfig{
			CellBits:       1023,
			CellRefs:       4,
			ArrayKeyLength: 32,
			AddressBits:    267,
			DictValueBits:  512,
		},
		ABI: ABIConfig{
			DefaultVersion: 2,
			StdlibContract: "stdlib",
		},
		Intrinsics: IntrinsicsConfig{
			Prefix:          "tvm_",
			Deprecated:      deprecated,
			Internal:        append([]string(nil), internalIntrinsics...),
			StorageMutating: []string{"tvm_commit", "tvm_reset_storage"},
			DeployContract:  "tvm_deploy_contract",
		},
	}
}

var deprecatedIntrinsics = map[string]string{
	"tvm_trans_lt":                "tvm.transLT()",
	"tvm_sender_pubkey":           "msg.pubkey()",
	"tvm_my_public_key":           "tvm.pubkey()",
	"tvm_chksignu":                "tvm.checkSign()",
	"tvm_hashcu":                  "tvm.hash()",
	"tvm_accept":                  "tvm.accept()",
	"tvm_unpack_address":          "address.unpack()",
	"tvm_make_address":            "address.makeAddrStd()",
	"tvm_transfer":                "address.transfer()",
	"tvm_make_zero_address":       "address.makeAddrStd()",
	"tvm_setcode":                 "tvm.setcode()",
	"tvm_is_zero_address":         "address.isNone()",
	"tvm_zero_ext_address":        "address.makeAddrNone()",
	"tvm_make_external_address":   "address.makeAddrExtern()",
	"tvm_commit":                  "tvm.commit()",
	"tvm_logstr":                  "tvm.log()",
	"tvm_tree_cell_size":          "tvm.cdatasize()",
	"tvm_reset_storage":           "tvm.resetStorage()",
	"tvm_config_param1":           "tvm.configParam()",
	"tvm_config_param15":          "tvm.configParam()",
	"tvm_config_param17":          "tvm.configParam()",
	"tvm_config_param34":          "tvm.configParam()",
	"tvm_deploy_contract":         "tvm.deploy() or tvm.deployAndCallConstructor()",
	"tvm_insert_pubkey":           "tvm.insertPubkey()",
	"tvm_build_state_init":        "tvm.buildStateInit()",
	"tvm_ignore_integer_overflow": "pragma ignoreIntOverflow",
}

var internalIntrinsics = []string{
	"tvm_ldu", "tvm_ldi", "tvm_pldu", "tvm_ldmsgaddr", "tvm_pldmsgaddr",
	"tvm_ldslice", "tvm_ldref", "tvm_lddict", "tvm_setindex", "tvm_sti",
	"tvm_stu", "tvm_stslice", "tvm_stref", "tvm_dictuset", "tvm_dictusetb",
	"tvm_bchkbitsq", "tvm_schkbitsq", "tvm_sbitrefs", "tvm_srefs",
	"tvm_brembits", "tvm_getfromdict", "tvm_get_slice_from_integer_dict",
	"tvm_tlen", "tvm_ends", "tvm_newc", "tvm_endc", "tvm_c4_key_length",
	"tvm_exception_constructoriscalledtwice", "tvm_exception_replayprotection",
	"tvm_exception_unpackaddress", "tvm_exception_insertpubkey", "tvm_stbr",
	"tvm_default_replay_protection_interval", "tvm_newdict", "tvm_c4",
	"tvm_c7", "tvm_first", "tvm_second", "tvm_third", "tvm_index", "tvm_sendrawmsg",
	"tvm_ubitsize", "tvm_stdict", "tvm_tpush", "tvm_setthird", "tvm_stbrefr",
	"tvm_tuple0", "tvm_popctr", "tvm_sdskipfirst", "tvm_dictudel", "tvm_isnull",
	"tvm_srempty", "tvm_sdempty", "tvm_ldrefrtos", "tvm_pldref_and_to_slice",
	"tvm_hashsu", "tvm_subslice", "tvm_pldslice", "tvm_selector_call",
	"tvm_sempty", "tvm_bremrefs", "tvm_sbits", "tvm_bbits", "tvm_pldrefvar",
	"tvm_push_fallback_func_id", "tvm_push_on_bounce_id", "tvm_push_minus_one",
	"tvm_stzeroes", "tvm_stones", "tvm_stgrams", "tvm_skipdict",
	"tvm_plddicts", "tvm_getparam", "tvm_plddict", "tvm_iszero",
	"tvm_poproot", "tvm_throwany", "tvm_parsemsgaddr", "tvm_reverse_push",
	"tvm_skip_and_load_uint256_in_slice_copy", "tvm_unpackfirst4",
	"tvm_stack",
}

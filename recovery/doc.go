// Package recovery implements threshold wallet recovery.
//
// A wallet owner splits the wallet key among guardians (SetupGuardians). Any
// party may start a recovery (InitiateRecovery); guardians approve it by
// submitting their share with a signature (ApproveRecovery). Once the
// threshold of approvals is reached and the timelock has passed, the key is
// reconstructed and stored under a new credential (CompleteRecovery). The
// owner can cancel at any point before completion (CancelRecovery).
//
// Inheritance is a dead man's switch on top of the same machinery: the owner
// names a beneficiary and checks in periodically; after a full inactivity
// period without a check-in the beneficiary may start a recovery
// (ClaimInheritance).
//
// Lifecycle of a request:
//
//	normal -> recovery_initiated -> waiting_guardians -> recovery_approved -> completed
//	             \__________________\____________________\______________-> cancelled
//
// All operations on one wallet are serialized; operations on different
// wallets run independently. Every transition is computed on a copy of the
// stored records and persisted only after all checks pass.
package recovery
